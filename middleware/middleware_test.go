package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"task-collab/common"
	"task-collab/middleware"
)

var tokens = common.NewTokenManager("secret", "test", time.Hour)

func echoUser(w http.ResponseWriter, r *http.Request) {
	userID, _ := common.UserIDFromContext(r.Context())
	w.Write([]byte(userID))
}

func errorKind(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body common.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestAuth_RejectsMissingAndBadCredentials(t *testing.T) {
	forged, err := common.NewTokenManager("other", "test", time.Hour).Issue("bob")
	require.NoError(t, err)
	expired, err := common.NewTokenManager("secret", "test", -time.Minute).Issue("bob")
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		kind   string
	}{
		{"missing", "", "Unauthenticated"},
		{"wrong scheme", "Token abc123", "Unauthenticated"},
		{"malformed", "Bearer invalid", "Unauthenticated"},
		{"forged", "Bearer " + forged, "InvalidOrExpired"},
		{"expired", "Bearer " + expired, "InvalidOrExpired"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			called := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()

			middleware.Auth(tokens, "session")(next).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, tc.kind, errorKind(t, rec))
			assert.False(t, called)
		})
	}
}

func TestAuth_AcceptsCookieAndBearer(t *testing.T) {
	token, err := tokens.Issue("bob")
	require.NoError(t, err)
	h := middleware.Auth(tokens, "session")(http.HandlerFunc(echoUser))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: token})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bob", rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "bob", rec.Body.String())
}

func TestAuth_StaleCookieFallsBackToBearer(t *testing.T) {
	token, err := tokens.Issue("bob")
	require.NoError(t, err)
	stale, err := common.NewTokenManager("secret", "test", -time.Minute).Issue("bob")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: stale})
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	middleware.Auth(tokens, "session")(http.HandlerFunc(echoUser)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bob", rec.Body.String())
}

func newLimiter(t *testing.T, limit int) (*middleware.RateLimiter, *miniredis.Miniredis) {
	t.Helper()
	m, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(m.Close)
	rdb := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return middleware.NewRateLimiter(rdb, limit, time.Minute, zap.NewNop()), m
}

func authed(userID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	return req.WithContext(common.WithUserID(req.Context(), userID))
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter, m := newLimiter(t, 3)
	handler := limiter.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	var codes []int
	for i := 0; i < 4; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, authed("bob"))
		codes = append(codes, rr.Code)
	}
	assert.Equal(t, []int{200, 200, 200, http.StatusTooManyRequests}, codes)

	// other users have their own window
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authed("alice"))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "2", rr.Header().Get("X-Rate-Limit-Remaining"))

	st, err := limiter.Status(authed("bob"), "bob")
	require.NoError(t, err)
	assert.Equal(t, 0, st.Remaining)
	assert.Equal(t, 3, st.Limit)
	assert.InDelta(t, 60, st.Reset, 1)

	m.FastForward(time.Minute + time.Second)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, authed("bob"))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRateLimitMiddleware_WindowAlwaysExpires(t *testing.T) {
	limiter, m := newLimiter(t, 1)
	handler := limiter.Middleware(http.HandlerFunc(echoUser))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, authed("bob"))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "1", mustGet(t, m, middleware.RateLimitKey("bob")))
	assert.Equal(t, time.Minute, m.TTL(middleware.RateLimitKey("bob")))

	// later hits keep the original expiry
	m.FastForward(30 * time.Second)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, authed("bob"))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, 30*time.Second, m.TTL(middleware.RateLimitKey("bob")))
	assert.Equal(t, "30", rr.Header().Get("Retry-After"))
}

func mustGet(t *testing.T, m *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := m.Get(key)
	require.NoError(t, err)
	return v
}

func TestRateLimitMiddleware_RequiresUser(t *testing.T) {
	limiter, _ := newLimiter(t, 3)
	rr := httptest.NewRecorder()
	limiter.Middleware(http.HandlerFunc(echoUser)).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRateLimitMiddleware_FailsOpenWithoutRedis(t *testing.T) {
	limiter, m := newLimiter(t, 1)
	m.Close()

	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		limiter.Middleware(http.HandlerFunc(echoUser)).ServeHTTP(rr, authed("bob"))
		assert.Equal(t, http.StatusOK, rr.Code)
	}
}

func TestRecovery(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	h := middleware.Recovery(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/explode", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}

func TestLogging_RecordsRouteStatusAndUser(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	token, err := tokens.Issue("bob")
	require.NoError(t, err)

	r := mux.NewRouter()
	r.Use(middleware.Logging(zap.New(core)))
	r.Handle("/tasks/{id}", middleware.Auth(tokens, "session")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))

	req := httptest.NewRequest(http.MethodGet, "/tasks/42", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/tasks/42", fields["path"])
	assert.EqualValues(t, http.StatusTeapot, fields["status"])
	assert.Equal(t, "bob", fields["userId"])
}

func TestCORS(t *testing.T) {
	h := middleware.CORS([]string{"http://localhost:5173/"})(http.HandlerFunc(echoUser))

	req := httptest.NewRequest(http.MethodOptions, "/tasks", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "PATCH")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/tasks", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/tasks", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "TRACE")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORS_WildcardEchoesOrigin(t *testing.T) {
	h := middleware.CORS([]string{"*"})(http.HandlerFunc(echoUser))

	req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	req.Header.Set("Origin", "http://app.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORS_NoOriginsConfigured(t *testing.T) {
	h := middleware.CORS(nil)(http.HandlerFunc(echoUser))

	req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	req.Header.Set("Origin", "http://app.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
