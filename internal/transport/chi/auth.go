package chi

import (
	"crypto/subtle"
	"net/http"
)

// AdminTokenHeader carries the admin token on admin routes.
const AdminTokenHeader = "X-Admin-Token"

// AdminTokenMiddleware rejects requests whose X-Admin-Token is not one of
// tokens. With no tokens configured every request is rejected, so admin
// routes are closed unless explicitly enabled.
func AdminTokenMiddleware(tokens []string) func(http.Handler) http.Handler {
	valid := make([][]byte, 0, len(tokens))
	for _, t := range tokens {
		if t != "" {
			valid = append(valid, []byte(t))
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(AdminTokenHeader)
			if got == "" {
				writeError(w, http.StatusUnauthorized, ErrorResponseCodeUnauthorized, "missing admin token")
				return
			}
			if !tokenAllowed(valid, []byte(got)) {
				writeError(w, http.StatusUnauthorized, ErrorResponseCodeUnauthorized, "invalid admin token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func tokenAllowed(valid [][]byte, got []byte) bool {
	ok := false
	for _, v := range valid {
		if subtle.ConstantTimeCompare(v, got) == 1 {
			ok = true
		}
	}
	return ok
}
