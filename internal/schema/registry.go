package schema

import (
	"regexp"
	"strings"

	"github.com/tordrt/dyntable/internal/errs"
)

// LogicalType is the backend-independent column type vocabulary
type LogicalType string

const (
	TypeString   LogicalType = "string"
	TypeInteger  LogicalType = "integer"
	TypeBoolean  LogicalType = "boolean"
	TypeDatetime LogicalType = "datetime"
	TypeFloat    LogicalType = "float"
)

// LogicalTypes lists the supported logical types in a stable order
var LogicalTypes = []LogicalType{TypeString, TypeInteger, TypeBoolean, TypeDatetime, TypeFloat}

// ParseLogicalType resolves a caller-supplied type name, ignoring case
func ParseLogicalType(s string) (LogicalType, error) {
	lt := LogicalType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range LogicalTypes {
		if lt == known {
			return lt, nil
		}
	}
	names := make([]string, len(LogicalTypes))
	for i, known := range LogicalTypes {
		names[i] = string(known)
	}
	return "", errs.Invalid(errs.CodeUnsupportedType,
		"unsupported data type: %s. Supported types are: %s", s, strings.Join(names, ", "))
}

var (
	tableNamePattern  = regexp.MustCompile(`^[A-Za-z0-9]+$`)
	columnNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// maxIdentifierLength is the PostgreSQL limit, the strictest of the supported backends
const maxIdentifierLength = 63

// ValidateTableName enforces the alphanumeric allowlist on table names.
// Table names are interpolated into statements, so every entry point calls this.
func ValidateTableName(name string) error {
	if !tableNamePattern.MatchString(name) || len(name) > maxIdentifierLength {
		return errs.Invalid(errs.CodeInvalidIdentifier, "invalid table name: '%s' (must be alphanumeric)", name)
	}
	return nil
}

// ValidateColumnName enforces the allowlist on column names of new tables
func ValidateColumnName(name string) error {
	if !columnNamePattern.MatchString(name) || len(name) > maxIdentifierLength {
		return errs.Invalid(errs.CodeInvalidIdentifier,
			"invalid column name: '%s' (letters, digits and underscores, not starting with a digit)", name)
	}
	return nil
}
