package schema

import (
	"regexp"
	"time"

	"github.com/localretrieve/localretrieve/internal/apperrors"
)

// collectionNamePattern matches the set of identifiers safe to splice into a
// CREATE TABLE/VIRTUAL TABLE statement: SQLite identifier rules restricted
// further to what every table/index name template above expects.
var collectionNamePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]{0,63}$`)

// SanitizeName validates a collection name is safe to use as a SQL
// identifier fragment (docs_<name>, fts_<name>, vec_<name>_dense). Unlike
// bound parameters, table names can't be passed through the driver, so this
// allow-list is what stands in for the ASCII-binding invariant here.
func SanitizeName(name string) (string, error) {
	if !collectionNamePattern.MatchString(name) {
		return "", apperrors.New(apperrors.KindValidation, apperrors.SeverityHigh, "schema", "SanitizeName",
			apperrors.ErrInvalidName).
			WithAction("use a collection name matching [a-zA-Z][a-zA-Z0-9_]{0,63}").
			WithParams(map[string]any{"name": name})
	}
	return name, nil
}

func nowUnixMilli() int64 {
	return time.Now().UnixMilli()
}
