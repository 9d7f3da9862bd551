package archive

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"go.uber.org/zap"
)

// historyColumns fixes the Parquet column types so that batches with only
// null usernames or no changes still share one layout.
const historyColumns = `{'entry_id': 'VARCHAR', 'collection': 'VARCHAR', 'document_id': 'VARCHAR', 'time': 'TIMESTAMPTZ', 'username': 'VARCHAR', 'action': 'VARCHAR', 'data': 'VARCHAR', 'changes': 'VARCHAR'}`

// DuckExporter converts JSON-lines history batches into Parquet files.
type DuckExporter struct {
	DB     *sql.DB
	Logger *zap.Logger
}

// NewDuckExporter opens DuckDB at path (in memory when empty) and applies
// the resource pragmas.
func NewDuckExporter(ctx context.Context, path string, memoryLimitMB, threads int, logger *zap.Logger) (*DuckExporter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping duckdb: %w", err)
	}
	var pragmas []string
	if memoryLimitMB > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA memory_limit='%dMB';", memoryLimitMB))
	}
	if threads > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA threads=%d;", threads))
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx2, p); err != nil {
			logger.Sugar().Warnw("duckdb pragma failed", "pragma", p, "err", err)
		}
	}
	return &DuckExporter{DB: db, Logger: logger}, nil
}

func (e *DuckExporter) Close() error {
	if e == nil || e.DB == nil {
		return nil
	}
	return e.DB.Close()
}

// exportStatement builds the COPY converting a JSON-lines file to Parquet.
func exportStatement(jsonPath, parquetPath string) string {
	return fmt.Sprintf(
		"COPY (SELECT * FROM read_json('%s', format = 'newline_delimited', columns = %s)) TO '%s' (FORMAT PARQUET, COMPRESSION 'ZSTD');",
		escapeLiteral(jsonPath), historyColumns, escapeLiteral(parquetPath),
	)
}

// ExportParquet writes the rows of jsonPath to parquetPath.
func (e *DuckExporter) ExportParquet(ctx context.Context, jsonPath, parquetPath string) error {
	stmt := exportStatement(jsonPath, parquetPath)
	e.Logger.Sugar().Debugw("duckdb export", "source", jsonPath, "target", parquetPath)
	if _, err := e.DB.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("duckdb copy exec: %w", err)
	}
	return nil
}

// CountRows reads back the row count of a Parquet file.
func (e *DuckExporter) CountRows(ctx context.Context, parquetPath string) (int64, error) {
	var n int64
	query := fmt.Sprintf("SELECT count(*) FROM read_parquet('%s');", escapeLiteral(parquetPath))
	if err := e.DB.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("duckdb count parquet: %w", err)
	}
	return n, nil
}

func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
