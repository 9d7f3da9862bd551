package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lychee-technology/docschema"
	"go.uber.org/zap"
)

// LoadSchemaDirectory parses every <collection>.json file in dir and
// registers it. Files are loaded in name order; the registered names are returned.
func LoadSchemaDirectory(dir string, funcs *docschema.FuncRegistry, registry docschema.SchemaRegistry) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	names := make([]string, 0, len(files))
	for _, file := range files {
		name := strings.TrimSuffix(file, ".json")
		path := filepath.Join(dir, file)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read schema file %s: %w", path, err)
		}
		schema, err := docschema.ParseSchemaDefinition(data, funcs)
		if err != nil {
			return nil, docschema.NewSchemaInvalidError(name, err)
		}
		if err := registry.Register(name, schema); err != nil {
			return nil, err
		}
		names = append(names, name)
	}

	if len(names) == 0 {
		return nil, fmt.Errorf("no schema files found in directory: %s", dir)
	}
	zap.S().Infow("Loaded schema directory", "dir", dir, "collections", names)
	return names, nil
}
