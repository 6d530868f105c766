package engine

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/wonhochoi1/nature/internal/engine/ir"
	"github.com/wonhochoi1/nature/pkg"

	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
)

// executeSQL runs a statement on the session store, or on a named
// connection. Row-returning statements yield their rows; anything else
// commits and yields nil.
func (d *Dispatcher) executeSQL(ctx context.Context, ec *ExecutionContext, details ir.SQLQuery) (any, error) {
	if details.Query == "" {
		return nil, fmt.Errorf("empty SQL query")
	}

	var (
		db  *sql.DB
		err error
	)
	if details.Connection == "" {
		db, err = ec.Session(ctx)
	} else {
		if config, ok := ec.ConnectionConfig(details.Connection); ok && config.ReadOnly && !pkg.IsSafeSelect(details.Query) {
			return nil, fmt.Errorf("connection %s is read-only, only SELECT statements are allowed", details.Connection)
		}
		db, err = ec.GetConnection(ctx, details.Connection)
	}
	if err != nil {
		return nil, err
	}

	if !pkg.ReturnsRows(details.Query) {
		res, err := db.ExecContext(ctx, details.Query, details.Params...)
		if err != nil {
			return nil, fmt.Errorf("failed to execute statement: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			d.logger.Debug().Int64("rows_affected", n).Msg("Statement committed")
		}
		return nil, nil
	}

	rows, err := db.QueryContext(ctx, details.Query, details.Params...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

func scanRows(rows *sql.Rows) ([]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	out := []any{}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}
