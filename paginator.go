package bucketx

import (
	"context"
	"errors"
)

// ListPaginator walks a prefix listing page by page, following the store's
// continuation token until it stops returning one.
type ListPaginator struct {
	store  Store
	bucket string
	prefix string

	token     string
	firstPage bool
	done      bool
}

// NewListPaginator returns a paginator over every object under prefix. An
// empty prefix lists the whole bucket.
func NewListPaginator(store Store, bucket, prefix string) *ListPaginator {
	return &ListPaginator{
		store:     store,
		bucket:    bucket,
		prefix:    prefix,
		firstPage: true,
	}
}

// HasMorePages reports whether NextPage can be called again
func (p *ListPaginator) HasMorePages() bool {
	return p.firstPage || !p.done
}

// NextPage fetches the next page of the listing
func (p *ListPaginator) NextPage(ctx context.Context) (ListPage, error) {
	if !p.HasMorePages() {
		return ListPage{}, errors.New("bucketx: no more pages available")
	}

	page, err := p.store.List(ctx, p.bucket, ListOptions{
		Prefix:            p.prefix,
		ContinuationToken: p.token,
	})
	if err != nil {
		return ListPage{}, err
	}

	p.firstPage = false
	p.token = page.NextToken
	// a store that reports truncation without a token would loop forever
	p.done = !page.IsTruncated || page.NextToken == ""

	return page, nil
}

// ListAll exhausts the listing under prefix and returns every object in
// listing order.
func ListAll(ctx context.Context, store Store, bucket, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo

	p := NewListPaginator(store, bucket, prefix)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		objects = append(objects, page.Objects...)
	}

	return objects, nil
}
