package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/devfurlan/cuidly-sub007/pkg/errors"
)

// ParseQueryBool returns fallback when key is absent or blank.
func ParseQueryBool(r *http.Request, key string, fallback bool) (bool, error) {
	values, present := r.URL.Query()[key]
	if !present || strings.TrimSpace(values[0]) == "" {
		return fallback, nil
	}
	if len(values) > 1 {
		return false, pkgerrors.Newf(pkgerrors.CodeValidation, "query parameter %s given more than once", key)
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(values[0]))
	if err != nil {
		return false, pkgerrors.Newf(pkgerrors.CodeValidation, "query parameter %s must be true or false", key).
			WithDetails(map[string]string{key: "must be a boolean"})
	}
	return parsed, nil
}
