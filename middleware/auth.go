package middleware

import (
	"net/http"

	"task-collab/common"
)

// Auth resolves the first valid credential (cookie, then bearer header) and
// puts the user id on the request context. Requests without a valid
// credential stop here with 401.
func Auth(tokens *common.TokenManager, cookieName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := tokens.ValidateRequest(r, cookieName)
			if err != nil {
				common.WriteError(w, err)
				return
			}
			noteUser(r.Context(), userID)
			next.ServeHTTP(w, r.WithContext(common.WithUserID(r.Context(), userID)))
		})
	}
}
