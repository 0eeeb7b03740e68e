package bucketx

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// keySeparator is the separator object keys use regardless of platform
const keySeparator = "/"

// MapKeyToPath computes the local destination of an object key: the base
// directory, a single separator, then the key with "/" turned into the OS
// separator. The key is not cleaned; keys accepted by ValidateKey map to
// distinct files for a fixed base. An empty base means the current directory.
func MapKeyToPath(localBaseDir, key string) string {
	local := filepath.FromSlash(key)
	if localBaseDir == "" {
		return local
	}

	base := strings.TrimSuffix(localBaseDir, string(filepath.Separator))
	if filepath.Separator != '/' {
		base = strings.TrimSuffix(base, keySeparator)
	}
	if base == "" {
		// base was the filesystem root
		return string(filepath.Separator) + local
	}

	return base + string(filepath.Separator) + local
}

// EnsureParentDirectories creates every missing directory on the way to
// path. Calling it for an existing tree is a no-op.
func EnsureParentDirectories(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &StoreError{Op: "mkdir", Err: fmt.Errorf("%w: %v", ErrFilesystem, err)}
	}
	return nil
}

// ValidateKey rejects keys that cannot become a distinct regular file under
// the base directory: empty keys, directory markers, absolute keys and keys
// with an empty, "." or ".." segment.
func ValidateKey(key string) error {
	switch {
	case key == "":
		return fmt.Errorf("%w: key cannot be empty", ErrInvalidKey)
	case strings.HasSuffix(key, keySeparator):
		return fmt.Errorf("%w: %q is a directory marker", ErrInvalidKey, key)
	case strings.HasPrefix(key, keySeparator) || filepath.IsAbs(filepath.FromSlash(key)):
		return fmt.Errorf("%w: %q is absolute", ErrInvalidKey, key)
	}

	for _, segment := range strings.Split(key, keySeparator) {
		switch segment {
		case "..":
			return fmt.Errorf("%w: %q escapes the destination directory", ErrInvalidKey, key)
		case "", ".":
			// the filesystem collapses these, so another key would share the file
			return fmt.Errorf("%w: %q has an empty or \".\" segment", ErrInvalidKey, key)
		}
	}

	return nil
}
