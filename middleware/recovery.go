package middleware

import (
	"net/http"

	"go.uber.org/zap"

	"task-collab/common"
)

func Recovery(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("panic recovered",
						zap.Any("panic", rec),
						zap.String("method", r.Method),
						zap.String("path", r.URL.Path),
						zap.Stack("stack"),
					)
					common.WriteJSON(w, http.StatusInternalServerError, common.ErrorBody{Error: "StoreFailure", Message: "internal server error"})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
