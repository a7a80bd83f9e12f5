package db

import (
	"strings"
	"time"

	"github.com/tordrt/dyntable/internal/schema"
)

// Backend identifies a supported database
type Backend string

const (
	Postgres Backend = "postgres"
	MySQL    Backend = "mysql"
	SQLite   Backend = "sqlite"
)

// Dialect captures everything that differs between backends when building statements
type Dialect interface {
	Backend() Backend

	// QuoteIdent quotes a table or column name. Names must already have
	// passed the schema identifier checks.
	QuoteIdent(name string) string

	// Placeholder returns the bind marker for the n-th (1-based) parameter
	Placeholder(n int) string

	// NativeType maps a logical type to the backend column type
	NativeType(lt schema.LogicalType) string

	// IdentityType is the column type of the synthetic id column
	IdentityType() string

	// TimestampType is the column type of created_at/updated_at
	TimestampType() string

	// CurrentTimestamp is the SQL expression used as timestamp default
	CurrentTimestamp() string

	// NormalizeValue converts a scanned driver value into its canonical Go form
	NormalizeValue(col schema.Column, v any) any
}

// normalizeCommon handles conversions shared by every backend
func normalizeCommon(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case time.Time:
		return val.UTC()
	}
	return v
}

// sqlTimestampLayouts are the textual layouts drivers use for stored timestamps
var sqlTimestampLayouts = []string{
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
	time.RFC3339Nano,
}

// parseTimestamp parses a stored timestamp string, stripping SQLite's optional trailing Z
func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "Z")
	for _, layout := range sqlTimestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
