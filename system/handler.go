package system

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"task-collab/common"
	"task-collab/middleware"
	"task-collab/service"
)

const maxBodyBytes = 1 << 20

type Pinger interface {
	Ping(ctx context.Context) error
}

type CookieOptions struct {
	Name   string
	Secure bool
	TTL    time.Duration
}

type Handler struct {
	Tasks         *service.TaskService
	Notifications *service.NotificationService
	Accounts      *service.AccountService
	// Limiter is nil when Redis is not configured.
	Limiter *middleware.RateLimiter
	DB      Pinger
	Cookie  CookieOptions
	log     *zap.Logger
}

func NewHandler(
	tasks *service.TaskService,
	notifications *service.NotificationService,
	accounts *service.AccountService,
	limiter *middleware.RateLimiter,
	db Pinger,
	cookie CookieOptions,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		Tasks:         tasks,
		Notifications: notifications,
		Accounts:      accounts,
		Limiter:       limiter,
		DB:            db,
		Cookie:        cookie,
		log:           logger,
	}
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return common.NewValidationError("body", "request body is required")
		}
		return common.NewValidationError("body", "invalid JSON")
	}
	return nil
}

// fail writes err and logs the ones that are not the caller's fault.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if common.HTTPStatus(err) == http.StatusInternalServerError {
		h.log.Error("request failed", zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
	}
	common.WriteError(w, err)
}

// currentUser is only called behind the auth middleware.
func currentUser(r *http.Request) string {
	userID, _ := common.UserIDFromContext(r.Context())
	return userID
}

func pathID(r *http.Request) string {
	return mux.Vars(r)["id"]
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.DB.Ping(ctx); err != nil {
		h.log.Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	common.WriteJSON(w, status, v)
}
