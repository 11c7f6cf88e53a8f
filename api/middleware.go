package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// AuthMiddleware accepts either the static admin token from the
// configuration or a live API token stored on a user record. Both arrive
// as a standard bearer header.
func (a *API) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeError(w, http.StatusUnauthorized, "missing Authorization header")
			return
		}
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			writeError(w, http.StatusUnauthorized, "expected a bearer token")
			return
		}

		if a.token != "" &&
			subtle.ConstantTimeCompare([]byte(token), []byte(a.token)) == 1 {
			next.ServeHTTP(w, r)
			return
		}

		user, err := a.services.Provider.ValidateAPIToken(r.Context(), token)
		if err != nil {
			a.log.Error("validating api token", "error", err)
			writeError(w, http.StatusInternalServerError, "token validation failed")
			return
		}
		if user == nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}
