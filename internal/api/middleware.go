package api

import (
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/tinywideclouds/go-push-gateway/pkg/response"
)

const basicPrefix = "Basic "

// BasicAuth gates requests behind HTTP basic auth when both credentials are
// configured; with either empty the gateway stays open. The comparison is
// constant time.
func BasicAuth(user, password string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if user == "" || password == "" {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, basicPrefix) {
				unauthorized(w)
				return
			}

			decoded, err := base64.StdEncoding.DecodeString(header[len(basicPrefix):])
			if err != nil {
				unauthorized(w)
				return
			}

			expected := user + ":" + password
			if subtle.ConstantTimeCompare(decoded, []byte(expected)) != 1 {
				unauthorized(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Basic")
	response.WriteJSON(w, http.StatusUnauthorized, response.Failed(http.StatusUnauthorized, "Unauthorized"))
}
