package db

import (
	"fmt"
	"slices"
	"strings"
)

// BuildSet renders "col=$1, col2=$2" for the update map. Columns outside
// allowed are rejected. Placeholders are numbered in column order, so callers
// append their WHERE arguments after the returned args.
func BuildSet(updates map[string]any, allowed map[string]struct{}) (string, []any, error) {
	if len(updates) == 0 {
		return "", nil, fmt.Errorf("platform/db: empty update")
	}
	cols := make([]string, 0, len(updates))
	for col := range updates {
		if _, ok := allowed[col]; !ok {
			return "", nil, fmt.Errorf("platform/db: column %q is not updatable", col)
		}
		cols = append(cols, col)
	}
	slices.Sort(cols)
	parts := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, col := range cols {
		parts = append(parts, fmt.Sprintf("%s=$%d", col, i+1))
		args = append(args, updates[col])
	}
	return strings.Join(parts, ", "), args, nil
}
