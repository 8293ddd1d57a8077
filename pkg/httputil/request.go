package httputil

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

// PathParam returns a trimmed path parameter and whether it is non-empty.
func PathParam(r *http.Request, key string) (string, bool) {
	val := strings.TrimSpace(mux.Vars(r)[key])
	return val, val != ""
}

// PathParamOrError extracts a required path parameter and writes a 400 when
// it is missing.
func PathParamOrError(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	val, ok := PathParam(r, key)
	if !ok {
		WriteErrorMessage(w, r, http.StatusBadRequest, "missing path parameter: "+key)
	}
	return val, ok
}
