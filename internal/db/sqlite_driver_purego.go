//go:build !cgo_sqlite

package db

import (
	"strings"

	_ "modernc.org/sqlite"
)

const (
	sqliteDriverName = "sqlite"
	sqliteDriverType = "purego"
)

// sqliteDSN appends the pragmas every pooled connection needs
func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_time_format=sqlite"
}
