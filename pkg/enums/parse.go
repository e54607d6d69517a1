package enums

import (
	"fmt"
	"strings"
)

// parse accepts any letter case and surrounding spaces; stored values are
// always upper case.
func parse[T ~string](kind, raw string, valid func(T) bool) (T, error) {
	candidate := T(strings.ToUpper(strings.TrimSpace(raw)))
	if !valid(candidate) {
		var zero T
		return zero, fmt.Errorf("invalid %s %q", kind, raw)
	}
	return candidate, nil
}
