package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/lychee-technology/docschema"
	"github.com/lychee-technology/docschema/internal"
	"github.com/spf13/pflag"
)

func runCheckSchemas(args []string, out io.Writer) error {
	flags := pflag.NewFlagSet("check-schemas", pflag.ContinueOnError)
	flags.SetOutput(os.Stdout)
	flags.Usage = func() {
		fmt.Println("Usage: docschema-tools check-schemas --schema-dir <dir>")
		fmt.Println("")
		fmt.Println("Options:")
		flags.PrintDefaults()
	}

	var schemaDir string
	flags.StringVar(&schemaDir, "schema-dir", getenvDefault("SCHEMA_DIR", ""), "directory containing <collection>.json schema files")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if err := requireFlag("schema-dir", schemaDir); err != nil {
		return err
	}
	return checkSchemas(schemaDir, out)
}

// checkSchemas registers every definition in dir and prints the collections
// with the reference edges pointing at each. References to collections with
// no definition are an error.
func checkSchemas(dir string, out io.Writer) error {
	registry := internal.NewSchemaRegistry()
	names, err := internal.LoadSchemaDirectory(dir, docschema.NewFuncRegistry(), registry)
	if err != nil {
		return err
	}

	index := internal.NewRelationIndex()
	for _, name := range names {
		schema, err := registry.Get(name)
		if err != nil {
			return err
		}
		index.Replace(name, internal.ReferenceEdges(name, schema))
		fmt.Fprintf(out, "%s: %d fields\n", name, schema.Len())
		for _, edge := range registry.Referrers(name) {
			fmt.Fprintf(out, "  <- %s.%s%s\n", edge.Source, strings.Join(edge.Path, "."), edgeFlags(edge))
		}
	}

	registered := make(map[string]bool, len(names))
	for _, name := range names {
		registered[name] = true
	}
	var unknown []string
	for _, target := range index.Targets() {
		if registered[target] {
			continue
		}
		for _, edge := range index.Referrers(target) {
			unknown = append(unknown, fmt.Sprintf("%s.%s -> %s", edge.Source, strings.Join(edge.Path, "."), target))
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("references to undefined collections: %s", strings.Join(unknown, ", "))
	}
	fmt.Fprintf(out, "%d schemas OK\n", len(names))
	return nil
}

func edgeFlags(edge docschema.ReferenceEdge) string {
	var flags []string
	if edge.Many {
		flags = append(flags, "many")
	}
	if edge.Required {
		flags = append(flags, "required")
	}
	if len(flags) == 0 {
		return ""
	}
	return " (" + strings.Join(flags, ", ") + ")"
}
