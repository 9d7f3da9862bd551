package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/lychee-technology/docschema"
	"github.com/natefinch/atomic"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

type dumpOptions struct {
	collection string
	out        string
	fields     string
	pageSize   int
}

func runDump(args []string) error {
	flags := pflag.NewFlagSet("dump", pflag.ContinueOnError)
	flags.SetOutput(os.Stdout)
	flags.Usage = func() {
		fmt.Println("Usage: docschema-tools dump --collection <name> --out <file> [options]")
		fmt.Println("")
		fmt.Println("Options:")
		flags.PrintDefaults()
	}

	store := storeOptions{}
	store.register(flags)
	opts := dumpOptions{}
	flags.StringVarP(&opts.collection, "collection", "c", "", "collection to dump")
	flags.StringVarP(&opts.out, "out", "o", "", "output JSON file")
	flags.StringVar(&opts.fields, "fields", "", "comma separated projection (optional)")
	flags.IntVar(&opts.pageSize, "page-size", 500, "documents read per query")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if err := requireFlag("collection", opts.collection); err != nil {
		return err
	}
	if err := requireFlag("out", opts.out); err != nil {
		return err
	}

	cfg, err := store.config(flags)
	if err != nil {
		return err
	}
	ctx := context.Background()
	engine, closeFn, err := openEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	n, err := dumpCollection(ctx, engine, opts)
	if err != nil {
		return err
	}
	zap.S().Infow("Dumped collection", "collection", opts.collection, "documents", n, "out", opts.out)
	return nil
}

// dumpCollection serializes every document of the collection, in _id order,
// and replaces opts.out atomically with the JSON array.
func dumpCollection(ctx context.Context, engine docschema.Engine, opts dumpOptions) (int, error) {
	coll, err := engine.Collection(opts.collection)
	if err != nil {
		return 0, err
	}
	if opts.pageSize <= 0 {
		opts.pageSize = 500
	}
	var fields []string
	if opts.fields != "" {
		for _, f := range strings.Split(opts.fields, ",") {
			if f = strings.TrimSpace(f); f != "" {
				fields = append(fields, f)
			}
		}
	}

	docs := []map[string]any{}
	for skip := 0; ; skip += opts.pageSize {
		page, err := coll.FindAndSerialize(ctx, docschema.Spec{}, docschema.FindOptions{
			Fields: fields,
			Skip:   skip,
			Limit:  opts.pageSize,
			Sort:   []docschema.SortField{{Field: docschema.IDField}},
		})
		if err != nil {
			return 0, err
		}
		docs = append(docs, page...)
		if len(page) < opts.pageSize {
			break
		}
	}

	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("encode %s: %w", opts.collection, err)
	}
	if err := atomic.WriteFile(opts.out, bytes.NewReader(append(data, '\n'))); err != nil {
		return 0, fmt.Errorf("write %s: %w", opts.out, err)
	}
	return len(docs), nil
}
