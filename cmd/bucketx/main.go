package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/gostratum/bucketx"
	"github.com/gostratum/bucketx/adapters/minio"
	"github.com/gostratum/bucketx/adapters/s3"
	"github.com/gostratum/bucketx/fixture"
	"github.com/gostratum/bucketx/transfer"
)

var version = "0.1.0"

func main() {
	// .env is optional
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout).RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "bucketx: %v\n", err)
		os.Exit(1)
	}
}

func newApp(stdout io.Writer) *cli.App {
	defaults := fixture.DefaultConfig()

	return &cli.App{
		Name:      "bucketx",
		Usage:     "Download objects from an S3-compatible object store",
		Version:   version,
		ArgsUsage: "BUCKET",
		Writer:    stdout,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "prefix", Aliases: []string{"p"}, Usage: "Key prefix of the objects to download"},
			&cli.StringFlag{Name: "key", Aliases: []string{"k"}, Usage: "Key of a single object to download"},
			&cli.IntFlag{Name: "cpus", Aliases: []string{"cp"}, Usage: "Number of parallel download workers"},
			&cli.BoolFlag{Name: "coroutines", Aliases: []string{"cr"}, Usage: "Download sequentially through one session"},
			&cli.StringFlag{Name: "localdir", Aliases: []string{"ld"}, Value: "download/", Usage: "Destination directory"},
			&cli.StringFlag{Name: "config", Aliases: []string{"cf"}, Usage: "JSON file with accessKey, secretKey and url"},
			&cli.StringFlag{Name: "accesskey", Aliases: []string{"ak"}, Usage: "Access key"},
			&cli.StringFlag{Name: "secretkey", Aliases: []string{"sk"}, Usage: "Secret key"},
			&cli.StringFlag{Name: "endpoint", Aliases: []string{"e"}, Usage: "Endpoint URL of an S3-compatible store"},
			&cli.BoolFlag{Name: "test", Aliases: []string{"t"}, Usage: "Create the test objects before anything else"},
			&cli.BoolFlag{Name: "teardown", Usage: "Delete the test objects after anything else"},
			&cli.StringFlag{Name: "test-bucket", Value: "test", Usage: "Bucket used by --test and --teardown"},
			&cli.IntFlag{Name: "fixture-count", Value: defaults.Count, Usage: "Number of test objects"},
			&cli.IntFlag{Name: "fixture-min-size", Value: defaults.MinSize, Usage: "Minimum test object size in bytes"},
			&cli.IntFlag{Name: "fixture-max-size", Value: defaults.MaxSize, Usage: "Maximum test object size in bytes"},
			&cli.StringFlag{Name: "provider", Value: bucketx.ProviderS3, Usage: "Store client: s3 or minio"},
			&cli.StringFlag{Name: "region", Usage: "Store region"},
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "Log level: debug, info, warn or error"},
			&cli.StringFlag{Name: "metrics-file", Usage: "Write Prometheus metrics to this file on exit"},
		},
		Action: func(c *cli.Context) error {
			return run(c, stdout)
		},
	}
}

func providerModule(provider string) fx.Option {
	if provider == bucketx.ProviderMinio {
		return minio.Module()
	}
	return s3.Module()
}

func run(c *cli.Context, stdout io.Writer) error {
	logger, err := bucketx.NewLogger(c.String("log-level"))
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	mode, conflict := transfer.SelectMode(c.Int("cpus"), c.Bool("coroutines"))
	if mode == transfer.ModeNone && !c.Bool("test") && !c.Bool("teardown") {
		return errors.New("nothing to do: pass --cpus, --coroutines, --test or --teardown")
	}

	bucket := c.Args().First()
	if mode != transfer.ModeNone && bucket == "" {
		return errors.New("missing BUCKET argument")
	}

	// configuration problems stop the run before any network activity
	if err := validateBuckets(c, mode, bucket); err != nil {
		return err
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	var (
		orchestrator *transfer.Orchestrator
		generator    *fixture.Generator
	)
	fixtureCfg := loadFixtureConfig(c)

	app := fx.New(
		fx.NopLogger,
		bucketx.Module(),
		bucketx.WithConfig(cfg),
		bucketx.WithCustomLogger(logger),
		providerModule(cfg.Provider),
		transfer.Module(),
		fixture.Module(),
		fx.Supply(&fixtureCfg),
		fx.Provide(func() prometheus.Registerer { return registry }),
		fx.Populate(&orchestrator, &generator),
	)
	if err := app.Err(); err != nil {
		return err
	}

	ctx := c.Context
	if err := app.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = app.Stop(context.Background()) }()

	if path := c.String("metrics-file"); path != "" {
		defer func() {
			if err := prometheus.WriteToTextfile(path, registry); err != nil {
				logger.Warn("Writing metrics failed", zap.String("path", path), zap.Error(err))
			}
		}()
	}

	if c.Bool("test") {
		testBucket := c.String("test-bucket")
		fmt.Fprintf(stdout, "Creating test objects in bucket %s\n", testBucket)
		n, err := generator.Setup(ctx, testBucket)
		if err != nil {
			return fmt.Errorf("creating test objects: %w", err)
		}
		fmt.Fprintf(stdout, "Created %d test objects in bucket %s under prefix %s\n", n, testBucket, fixtureCfg.Prefix)
	}

	if conflict {
		logger.Warn("Both --cpus and --coroutines given; using the parallel pool")
	}

	if err := download(ctx, c, stdout, logger, orchestrator, mode, bucket); err != nil {
		return err
	}

	if c.Bool("teardown") {
		testBucket := c.String("test-bucket")
		n, err := generator.Teardown(ctx, testBucket)
		if err != nil {
			return fmt.Errorf("deleting test objects: %w", err)
		}
		fmt.Fprintf(stdout, "Deleted %d test objects from bucket %s\n", n, testBucket)
	}

	return nil
}

func validateBuckets(c *cli.Context, mode transfer.Mode, bucket string) error {
	var names []string
	if mode != transfer.ModeNone {
		names = append(names, bucket)
	}
	if c.Bool("test") || c.Bool("teardown") {
		names = append(names, c.String("test-bucket"))
	}

	for _, name := range names {
		if err := bucketx.ValidateBucketName(name); err != nil {
			return fmt.Errorf("%w: bucket %q: %v", bucketx.ErrInvalidConfig, name, err)
		}
	}
	return nil
}

func download(ctx context.Context, c *cli.Context, stdout io.Writer, logger *zap.Logger, o *transfer.Orchestrator, mode transfer.Mode, bucket string) error {
	localDir := c.String("localdir")
	prefix := c.String("prefix")
	key := c.String("key")

	switch mode {
	case transfer.ModeParallel:
		if key != "" {
			logger.Warn("--key is ignored by the parallel pool", zap.String("key", key))
		}

		fmt.Fprintf(stdout, "Downloading to %s...\n", localDir)
		summary, err := o.DownloadParallel(ctx, bucket, prefix, c.Int("cpus"), localDir)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Downloaded %d files\n", summary.Dispatched)
		printFailures(stdout, summary)
		fmt.Fprintf(stdout, "Parallel download time %.2f s\n", summary.Elapsed.Seconds())

	case transfer.ModeSequential:
		switch {
		case prefix != "":
			fmt.Fprintf(stdout, "Downloading to %s...\n", localDir)
			summary, err := o.DownloadByPrefix(ctx, bucket, prefix, localDir)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "Download complete!\n")
			printFailures(stdout, summary)
			fmt.Fprintf(stdout, "Sequential download time %.2f s\n", summary.Elapsed.Seconds())

		case key != "":
			fmt.Fprintf(stdout, "Downloading to %s...\n", localDir)
			start := time.Now()
			if err := o.DownloadByKey(ctx, bucket, key, localDir); err != nil {
				fmt.Fprintf(stdout, "Failed %s: %v\n", key, err)
				return err
			}
			fmt.Fprintf(stdout, "Download complete!\n")
			fmt.Fprintf(stdout, "Sequential download time %.2f s\n", time.Since(start).Seconds())

		default:
			return errors.New("--coroutines needs --prefix or --key")
		}
	}

	return nil
}

func printFailures(stdout io.Writer, summary transfer.Summary) {
	for _, f := range summary.Failures {
		fmt.Fprintf(stdout, "Failed %s: %v\n", f.Key, f.Err)
	}
}
