package system

import (
	"net/http"

	"go.uber.org/zap"

	"task-collab/common"
)

// RateLimitStatus reports the caller's remaining requests in the current
// window and the seconds until it resets.
func (h *Handler) RateLimitStatus(w http.ResponseWriter, r *http.Request) {
	if h.Limiter == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"enabled": false})
		return
	}
	st, err := h.Limiter.Status(r, currentUser(r))
	if err != nil {
		h.log.Warn("read rate limit", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, common.ErrorBody{Error: "StoreFailure", Message: "rate limit unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, st)
}
