package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/lychee-technology/docschema"
	"github.com/lychee-technology/docschema/internal/archive"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

type archiveFlags struct {
	olderThan  time.Duration
	bucket     string
	prefix     string
	region     string
	endpoint   string
	accessKey  string
	secretKey  string
	pathStyle  bool
	batchSize  int
	duckdbPath string
	workDir    string
	prune      bool
	dryRun     bool
}

func (a *archiveFlags) register(flags *pflag.FlagSet) {
	flags.DurationVar(&a.olderThan, "older-than", 0, "archive entries older than this (default from config: 30 days)")
	flags.StringVar(&a.bucket, "bucket", getenvDefault("ARCHIVE_S3_BUCKET", ""), "S3 bucket")
	flags.StringVar(&a.prefix, "prefix", getenvDefault("ARCHIVE_S3_PREFIX", ""), "S3 key prefix")
	flags.StringVar(&a.region, "s3-region", getenvDefault("ARCHIVE_S3_REGION", ""), "S3 region")
	flags.StringVar(&a.endpoint, "s3-endpoint", getenvDefault("ARCHIVE_S3_ENDPOINT", ""), "custom S3 endpoint, e.g. MinIO")
	flags.StringVar(&a.accessKey, "s3-access-key", getenvDefault("ARCHIVE_S3_ACCESS_KEY", ""), "static S3 access key")
	flags.StringVar(&a.secretKey, "s3-secret-key", getenvDefault("ARCHIVE_S3_SECRET_KEY", ""), "static S3 secret key")
	flags.BoolVar(&a.pathStyle, "s3-path-style", false, "use path-style S3 addressing")
	flags.IntVar(&a.batchSize, "batch-size", 0, "maximum entries per run")
	flags.StringVar(&a.duckdbPath, "duckdb-path", "", "DuckDB database file (in memory when empty)")
	flags.StringVar(&a.workDir, "work-dir", "", "directory for temporary files")
	flags.BoolVar(&a.prune, "prune", false, "remove archived entries from the history collection")
	flags.BoolVar(&a.dryRun, "dry-run", false, "convert but neither upload nor prune")
}

// apply overlays the flags that were set onto cfg.
func (a *archiveFlags) apply(flags *pflag.FlagSet, cfg *docschema.ArchiveConfig) {
	if flags.Changed("older-than") {
		cfg.OlderThan = docschema.Duration(a.olderThan)
	}
	if a.bucket != "" {
		cfg.S3Bucket = a.bucket
	}
	if a.prefix != "" {
		cfg.S3Prefix = a.prefix
	}
	if a.region != "" {
		cfg.S3Region = a.region
	}
	if a.endpoint != "" {
		cfg.S3Endpoint = a.endpoint
	}
	if a.accessKey != "" {
		cfg.S3AccessKey = a.accessKey
		cfg.S3SecretKey = a.secretKey
	}
	if flags.Changed("s3-path-style") {
		cfg.S3UsePathStyle = a.pathStyle
	}
	if a.batchSize > 0 {
		cfg.BatchSize = a.batchSize
	}
	if a.duckdbPath != "" {
		cfg.DuckDBPath = a.duckdbPath
	}
	if a.workDir != "" {
		cfg.WorkDir = a.workDir
	}
}

func runArchiveHistory(args []string) error {
	flags := pflag.NewFlagSet("archive-history", pflag.ContinueOnError)
	flags.SetOutput(os.Stdout)
	flags.Usage = func() {
		fmt.Println("Usage: docschema-tools archive-history --bucket <bucket> [options]")
		fmt.Println("")
		fmt.Println("Options:")
		flags.PrintDefaults()
	}

	store := storeOptions{}
	store.register(flags)
	af := archiveFlags{}
	af.register(flags)

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := store.config(flags)
	if err != nil {
		return err
	}
	af.apply(flags, &cfg.Archive)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if !af.dryRun {
		if err := requireFlag("bucket", cfg.Archive.S3Bucket); err != nil {
			return err
		}
	}

	ctx := context.Background()
	opened, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer opened.close()

	logger := zap.L()
	exporter, err := archive.NewDuckExporter(ctx, cfg.Archive.DuckDBPath, cfg.Archive.MemoryLimitMB, cfg.Archive.Threads, logger)
	if err != nil {
		return err
	}
	defer exporter.Close()

	var uploader archive.Uploader
	if !af.dryRun {
		uploader, err = archive.NewS3Uploader(ctx, cfg.Archive)
		if err != nil {
			return err
		}
	}

	archiver := archive.NewArchiver(opened.store, cfg.Entity.HistoryCollection, cfg.Archive, exporter, uploader, logger)
	result, err := archiver.Run(ctx, archive.Options{Prune: af.prune, DryRun: af.dryRun})
	if err != nil {
		return err
	}

	if opened.memory != nil && result.Pruned > 0 {
		if err := opened.memory.SaveSnapshot(cfg.Entity.SnapshotPath); err != nil {
			return err
		}
	}
	fmt.Printf("Archived %d history entries to %s (pruned %d)\n", result.Entries, result.Key, result.Pruned)
	return nil
}
