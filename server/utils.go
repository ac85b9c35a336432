package server

import (
	"net/http"
	"strconv"
)

// parseIntQuery returns the integer value of a query parameter or the default.
func parseIntQuery(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
