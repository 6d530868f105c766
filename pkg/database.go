package pkg

import (
	"strings"

	"github.com/blastrain/vitess-sqlparser/sqlparser"
)

// rowKeywords start statements that produce rows but that the MySQL grammar
// of the parser does not know.
var rowKeywords = []string{"SELECT", "WITH", "VALUES", "PRAGMA", "EXPLAIN"}

// IsSafeSelect reports whether sql parses as a single SELECT statement.
func IsSafeSelect(sql string) bool {
	stmt, err := sqlparser.Parse(sql)
	if err != nil {
		return false
	}
	switch stmt.(type) {
	case *sqlparser.Select, *sqlparser.Union, *sqlparser.ParenSelect:
		return true
	default:
		return false
	}
}

// ReturnsRows reports whether executing sql yields a result set. Statements the
// parser cannot read fall back to their leading keyword.
func ReturnsRows(sql string) bool {
	trimmed := strings.TrimSpace(stripLeadingComments(sql))
	if trimmed == "" {
		return false
	}
	if stmt, err := sqlparser.Parse(trimmed); err == nil {
		switch stmt.(type) {
		case *sqlparser.Select, *sqlparser.Union, *sqlparser.ParenSelect, *sqlparser.Show, *sqlparser.OtherRead:
			return true
		default:
			return false
		}
	}

	upper := strings.ToUpper(trimmed)
	for _, kw := range rowKeywords {
		if strings.HasPrefix(upper, kw) {
			return true
		}
	}
	return false
}

func stripLeadingComments(sql string) string {
	for {
		sql = strings.TrimSpace(sql)
		switch {
		case strings.HasPrefix(sql, "--"):
			i := strings.IndexByte(sql, '\n')
			if i < 0 {
				return ""
			}
			sql = sql[i+1:]
		case strings.HasPrefix(sql, "/*"):
			i := strings.Index(sql, "*/")
			if i < 0 {
				return ""
			}
			sql = sql[i+2:]
		default:
			return sql
		}
	}
}
