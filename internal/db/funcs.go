package db

import (
	"database/sql/driver"

	"golang.org/x/text/cases"
	"modernc.org/sqlite"
)

// FoldFunc is the SQL name of the Unicode case-folding function available on
// every connection. SQLite's own LIKE and lower() only fold ASCII.
const FoldFunc = "casefold"

func init() {
	sqlite.MustRegisterDeterministicScalarFunction(FoldFunc, 1, foldValue)
}

func foldValue(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case string:
		return Fold(v), nil
	case []byte:
		return Fold(string(v)), nil
	default:
		return v, nil
	}
}

// Fold returns the Unicode case folding of s, matching what casefold() does
// inside queries.
func Fold(s string) string {
	// Casers keep state between calls and are not safe to share.
	return cases.Fold().String(s)
}
