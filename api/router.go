package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"task-collab/common"
	"task-collab/middleware"
	handler "task-collab/system"
)

type Options struct {
	Tokens         *common.TokenManager
	CookieName     string
	AllowedOrigins []string
	// Limiter is nil when Redis is not configured.
	Limiter *middleware.RateLimiter
	// Realtime serves the websocket endpoint.
	Realtime http.Handler
	Logger   *zap.Logger
}

func NewRouter(h *handler.Handler, opts Options) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Recovery(opts.Logger))
	r.Use(middleware.Logging(opts.Logger))
	r.Use(middleware.CORS(opts.AllowedOrigins))

	//  Public routes
	r.Handle("/ws", opts.Realtime).Methods("GET")
	r.HandleFunc("/health", h.Health).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	v1 := r.PathPrefix("/api/v1").Subrouter()
	// preflight requests are answered by the CORS middleware
	v1.Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	v1.HandleFunc("/auth/register", h.Register).Methods("POST")
	v1.HandleFunc("/auth/login", h.Login).Methods("POST")
	v1.HandleFunc("/auth/logout", h.Logout).Methods("POST")

	//  Protected routes
	p := v1.NewRoute().Subrouter()
	p.Use(middleware.Auth(opts.Tokens, opts.CookieName))
	if opts.Limiter != nil {
		p.Use(opts.Limiter.Middleware)
	}
	p.HandleFunc("/auth/me", h.Me).Methods("GET")
	p.HandleFunc("/auth/update", h.UpdateProfile).Methods("PUT")
	p.HandleFunc("/users", h.ListUsers).Methods("GET")
	p.HandleFunc("/rate-limit", h.RateLimitStatus).Methods("GET")

	p.HandleFunc("/tasks", h.GetAllTasks).Methods("GET")
	p.HandleFunc("/tasks", h.CreateTask).Methods("POST")
	p.HandleFunc("/tasks/dashboard", h.GetDashboard).Methods("GET")
	p.HandleFunc("/tasks/overdue", h.GetOverdueTasks).Methods("GET")
	p.HandleFunc("/tasks/{id}", h.GetTask).Methods("GET")
	p.HandleFunc("/tasks/{id}", h.UpdateTask).Methods("PATCH")
	p.HandleFunc("/tasks/{id}", h.DeleteTask).Methods("DELETE")

	p.HandleFunc("/notifications", h.GetNotifications).Methods("GET")
	p.HandleFunc("/notifications/read-all", h.MarkAllNotificationsRead).Methods("PATCH")
	p.HandleFunc("/notifications/{id}/read", h.MarkNotificationRead).Methods("PATCH")

	return r
}
