package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Errorf("failed to set up logger: %w", err))
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	sugar := logger.Sugar()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init-db":
		if err := runInitDB(os.Args[2:]); err != nil {
			sugar.Fatalf("init-db: %v", err)
		}
	case "check-schemas":
		if err := runCheckSchemas(os.Args[2:], os.Stdout); err != nil {
			sugar.Fatalf("check-schemas: %v", err)
		}
	case "dump":
		if err := runDump(os.Args[2:]); err != nil {
			sugar.Fatalf("dump: %v", err)
		}
	case "archive-history":
		if err := runArchiveHistory(os.Args[2:]); err != nil {
			sugar.Fatalf("archive-history: %v", err)
		}
	default:
		sugar.Errorf("unknown command %q", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	logger := zap.S()
	logger.Info("Usage: docschema-tools <command> [options]")
	logger.Info("")
	logger.Info("Commands:")
	logger.Info("  init-db           Create the PostgreSQL documents table and indexes")
	logger.Info("  check-schemas     Parse a schema directory and report reference edges")
	logger.Info("  dump              Write one collection, serialized, to a JSON file")
	logger.Info("  archive-history   Move old history entries to Parquet on S3")
}
