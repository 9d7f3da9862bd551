package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/lychee-technology/docschema/factory"
	"github.com/lychee-technology/docschema/internal"
	"github.com/spf13/pflag"
)

// txBeginner is satisfied by *pgxpool.Pool and by pgxmock pools.
type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

func runInitDB(args []string) error {
	flags := pflag.NewFlagSet("init-db", pflag.ContinueOnError)
	flags.SetOutput(os.Stdout)
	flags.Usage = func() {
		fmt.Println("Usage: docschema-tools init-db [options]")
		fmt.Println("")
		fmt.Println("Options:")
		flags.PrintDefaults()
	}

	opts := storeOptions{}
	opts.register(flags)

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := opts.config(flags)
	if err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := factory.NewPostgresPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := withTx(ctx, pool, func(tx pgx.Tx) error {
		return ensureDocumentTable(ctx, tx, cfg.Database.TableNames.Documents)
	}); err != nil {
		return err
	}

	fmt.Println("Database initialized successfully.")
	return nil
}

// ensureDocumentTable creates the documents table and its indexes if missing.
func ensureDocumentTable(ctx context.Context, tx pgx.Tx, table string) error {
	for _, stmt := range internal.DocumentTableDDL(table) {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure documents table %s: %w", table, err)
		}
	}
	fmt.Printf("Created documents table: %s\n", table)
	return nil
}

func withTx(ctx context.Context, db txBeginner, fn func(pgx.Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w; rollback failed: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}
