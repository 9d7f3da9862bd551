package archive

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/lychee-technology/docschema"
	"go.uber.org/zap"
)

// Exporter turns a JSON-lines file into a Parquet file.
type Exporter interface {
	ExportParquet(ctx context.Context, jsonPath, parquetPath string) error
}

// Options controls one archive run.
type Options struct {
	// Prune removes the archived entries from the history collection after
	// a successful upload.
	Prune bool
	// DryRun selects and converts entries but neither uploads nor prunes.
	DryRun bool
}

// Result summarizes one archive run.
type Result struct {
	Entries int
	Key     string
	Pruned  int
}

// Archiver moves history entries older than a cutoff to Parquet on S3.
type Archiver struct {
	store      docschema.DocumentStore
	collection string
	cfg        docschema.ArchiveConfig
	exporter   Exporter
	uploader   Uploader
	logger     *zap.Logger
	nowFunc    func() time.Time
}

func NewArchiver(store docschema.DocumentStore, historyCollection string, cfg docschema.ArchiveConfig, exporter Exporter, uploader Uploader, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{
		store:      store,
		collection: historyCollection,
		cfg:        cfg,
		exporter:   exporter,
		uploader:   uploader,
		logger:     logger,
		nowFunc:    time.Now,
	}
}

// Run archives one batch of at most cfg.BatchSize entries.
func (a *Archiver) Run(ctx context.Context, opts Options) (*Result, error) {
	if a.collection == "" {
		return nil, fmt.Errorf("history collection is not configured")
	}
	if !opts.DryRun && a.cfg.S3Bucket == "" {
		return nil, fmt.Errorf("archive.s3Bucket is required")
	}
	now := a.nowFunc().UTC()
	cutoff := now.Add(-a.cfg.OlderThan.Std())
	entries, err := a.store.Find(ctx, a.collection, docschema.Spec{
		"time": map[string]any{string(docschema.OpLt): cutoff},
	}, docschema.FindOptions{
		Sort:  []docschema.SortField{{Field: "time"}, {Field: docschema.IDField}},
		Limit: a.cfg.BatchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("select history entries: %w", err)
	}
	result := &Result{Entries: len(entries)}
	if len(entries) == 0 {
		a.logger.Sugar().Infow("no history entries to archive", "cutoff", cutoff)
		return result, nil
	}

	workDir, err := os.MkdirTemp(a.cfg.WorkDir, "history-archive-")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	jsonPath := filepath.Join(workDir, "history.jsonl")
	if err := writeJSONLines(jsonPath, entries); err != nil {
		return nil, err
	}
	parquetPath := filepath.Join(workDir, "history.parquet")
	if err := a.exporter.ExportParquet(ctx, jsonPath, parquetPath); err != nil {
		return nil, err
	}

	result.Key = objectKey(a.cfg.S3Prefix, now)
	if opts.DryRun {
		a.logger.Sugar().Infow("dry run: skipping upload", "entries", len(entries), "key", result.Key)
		return result, nil
	}
	if err := a.uploader.Upload(ctx, a.cfg.S3Bucket, result.Key, parquetPath); err != nil {
		return nil, err
	}
	a.logger.Sugar().Infow("archived history entries", "entries", len(entries), "bucket", a.cfg.S3Bucket, "key", result.Key)

	if opts.Prune {
		ids := make([]any, len(entries))
		for i, e := range entries {
			ids[i] = e[docschema.IDField]
		}
		removed, err := a.store.Remove(ctx, a.collection, docschema.Spec{
			docschema.IDField: map[string]any{string(docschema.OpIn): ids},
		})
		if err != nil {
			return result, fmt.Errorf("prune archived entries: %w", err)
		}
		result.Pruned = len(removed)
	}
	return result, nil
}

// objectKey names an archive by day plus a unique suffix.
func objectKey(prefix string, now time.Time) string {
	name := fmt.Sprintf("history-%s.parquet", uuid.Must(uuid.NewV7()).String())
	return path.Join(prefix, now.Format("2006/01/02"), name)
}

type archiveRow struct {
	EntryID    string  `json:"entry_id"`
	Collection string  `json:"collection"`
	DocumentID string  `json:"document_id"`
	Time       string  `json:"time"`
	Username   *string `json:"username"`
	Action     *string `json:"action"`
	Data       *string `json:"data"`
	Changes    *string `json:"changes"`
}

func writeJSONLines(filePath string, entries []map[string]any) error {
	f, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("create %s: %w", filePath, err)
	}
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, e := range entries {
		row, err := toArchiveRow(e)
		if err != nil {
			f.Close()
			return err
		}
		if err := enc.Encode(row); err != nil {
			f.Close()
			return fmt.Errorf("encode history row: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush %s: %w", filePath, err)
	}
	return f.Close()
}

func toArchiveRow(e map[string]any) (archiveRow, error) {
	row := archiveRow{
		DocumentID: fmt.Sprint(e["id"]),
		Username:   optionalString(e["username"]),
		Action:     optionalString(e["action"]),
	}
	row.EntryID, _ = e[docschema.IDField].(string)
	row.Collection, _ = e["collection"].(string)
	switch t := e["time"].(type) {
	case time.Time:
		row.Time = t.UTC().Format(time.RFC3339Nano)
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return row, fmt.Errorf("history entry %s has invalid time %q", row.EntryID, t)
		}
		row.Time = parsed.UTC().Format(time.RFC3339Nano)
	default:
		return row, fmt.Errorf("history entry %s has no time", row.EntryID)
	}
	for field, target := range map[string]**string{"data": &row.Data, "changes": &row.Changes} {
		v, ok := e[field]
		if !ok || v == nil {
			continue
		}
		encoded, err := json.Marshal(v)
		if err != nil {
			return row, fmt.Errorf("encode %s of history entry %s: %w", field, row.EntryID, err)
		}
		s := string(encoded)
		*target = &s
	}
	return row, nil
}

func optionalString(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return &s
}
