package system_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"task-collab/api"
	"task-collab/common"
	"task-collab/config"
	"task-collab/entity"
	"task-collab/middleware"
	"task-collab/notify"
	"task-collab/service"
	"task-collab/storage/sqlite"
	"task-collab/system"
	"task-collab/ws"
)

type testApp struct {
	srv *httptest.Server
	hub *ws.Hub
}

func newTestApp(t *testing.T, limiter *middleware.RateLimiter) *testApp {
	t.Helper()
	logger := zap.NewNop()
	store, err := sqlite.Open("sqlite", ":memory:", logger)
	require.NoError(t, err)

	hub := ws.NewHub(logger)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	pool := notify.NewWorkerPool(hub, 2, 64, logger)
	pool.Start(ctx)
	dispatcher := notify.NewDispatcher(pool, config.ScopeBroadcast, logger)
	tokens := common.NewTokenManager("secret", "test", time.Hour)

	h := system.NewHandler(
		service.NewTaskService(store, dispatcher, nil, logger),
		service.NewNotificationService(store, logger),
		service.NewAccountService(store, tokens, logger),
		limiter,
		store,
		system.CookieOptions{Name: "session", TTL: time.Hour},
		logger,
	)
	realtime := ws.NewHandler(hub, tokens, ws.Options{CookieName: "session", AllowedOrigins: []string{"*"}}, logger)
	srv := httptest.NewServer(api.NewRouter(h, api.Options{
		Tokens:         tokens,
		CookieName:     "session",
		AllowedOrigins: []string{"*"},
		Limiter:        limiter,
		Realtime:       realtime,
		Logger:         logger,
	}))

	t.Cleanup(func() {
		srv.Close()
		pool.Stop()
		cancel()
		store.Close()
	})
	return &testApp{srv: srv, hub: hub}
}

type user struct {
	ID    string
	Token string
}

type result struct {
	Status int
	Body   map[string]interface{}
	Header http.Header
}

func (a *testApp) do(t *testing.T, token, method, path string, body interface{}) result {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, a.srv.URL+path, r)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := a.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := result{Status: resp.StatusCode, Header: resp.Header}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out.Body), string(raw))
	}
	return out
}

func (a *testApp) signUp(t *testing.T, name string) user {
	t.Helper()
	email := name + "@example.com"
	res := a.do(t, "", "POST", "/api/v1/auth/register", map[string]string{"name": name, "email": email, "password": "secret1"})
	require.Equal(t, http.StatusCreated, res.Status)

	res = a.do(t, "", "POST", "/api/v1/auth/login", map[string]string{"email": email, "password": "secret1"})
	require.Equal(t, http.StatusOK, res.Status)
	return user{
		ID:    res.Body["user"].(map[string]interface{})["id"].(string),
		Token: res.Body["token"].(string),
	}
}

func (a *testApp) connect(t *testing.T, u user) *websocket.Conn {
	t.Helper()
	before := a.hub.RoomSize(u.ID)
	url := "ws" + strings.TrimPrefix(a.srv.URL, "http") + "/ws?token=" + u.Token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return a.hub.RoomSize(u.ID) == before+1 }, time.Second, 10*time.Millisecond)
	return conn
}

// next reads frames until one named event arrives.
func next(t *testing.T, conn *websocket.Conn, event string) json.RawMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg common.WSMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Event == event {
			return msg.Data
		}
	}
}

func taskBody(title, assignee string) map[string]interface{} {
	return map[string]interface{}{
		"title":        title,
		"description":  "details",
		"dueDate":      time.Now().Add(48 * time.Hour).Format(time.RFC3339),
		"priority":     "HIGH",
		"assignedToId": assignee,
	}
}

func TestAssignmentReachesLiveAssigneeAndMarkReadDecrementsUnread(t *testing.T) {
	app := newTestApp(t, nil)
	alice := app.signUp(t, "alice")
	bob := app.signUp(t, "bob")
	bobConn := app.connect(t, bob)

	res := app.do(t, alice.Token, "POST", "/api/v1/tasks", taskBody("Quarterly report", bob.ID))
	require.Equal(t, http.StatusCreated, res.Status)
	taskID := res.Body["task"].(map[string]interface{})["id"].(string)

	var pushed entity.Notification
	require.NoError(t, json.Unmarshal(next(t, bobConn, common.EventTaskAssigned), &pushed))
	assert.Equal(t, `You have been assigned a new task: "Quarterly report"`, pushed.Message)
	assert.Equal(t, taskID, pushed.TaskID)
	assert.Equal(t, bob.ID, pushed.UserID)
	assert.False(t, pushed.Read)

	res = app.do(t, bob.Token, "GET", "/api/v1/notifications", nil)
	require.Equal(t, http.StatusOK, res.Status)
	assert.EqualValues(t, 1, res.Body["unreadCount"])

	res = app.do(t, bob.Token, "PATCH", "/api/v1/notifications/"+pushed.ID+"/read", nil)
	require.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, true, res.Body["notification"].(map[string]interface{})["read"])

	res = app.do(t, bob.Token, "PATCH", "/api/v1/notifications/"+pushed.ID+"/read", nil)
	assert.Equal(t, http.StatusOK, res.Status, "second mark is not an error")

	res = app.do(t, bob.Token, "GET", "/api/v1/notifications", nil)
	assert.EqualValues(t, 0, res.Body["unreadCount"])
	items := res.Body["notifications"].([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, true, items[0].(map[string]interface{})["read"])

	res = app.do(t, alice.Token, "PATCH", "/api/v1/notifications/"+pushed.ID+"/read", nil)
	assert.Equal(t, http.StatusForbidden, res.Status)
	assert.Equal(t, "Forbidden", res.Body["error"])
}

func TestDeleteBroadcastsToEveryoneAndClearsNotifications(t *testing.T) {
	app := newTestApp(t, nil)
	alice := app.signUp(t, "alice")
	bob := app.signUp(t, "bob")
	carol := app.signUp(t, "carol")

	res := app.do(t, alice.Token, "POST", "/api/v1/tasks", taskBody("Doomed", bob.ID))
	require.Equal(t, http.StatusCreated, res.Status)
	taskID := res.Body["task"].(map[string]interface{})["id"].(string)

	conns := []*websocket.Conn{app.connect(t, alice), app.connect(t, bob), app.connect(t, carol)}

	res = app.do(t, bob.Token, "DELETE", "/api/v1/tasks/"+taskID, nil)
	assert.Equal(t, http.StatusForbidden, res.Status)

	res = app.do(t, alice.Token, "DELETE", "/api/v1/tasks/"+taskID, nil)
	require.Equal(t, http.StatusOK, res.Status)

	for _, c := range conns {
		assert.JSONEq(t, `{"taskId":"`+taskID+`"}`, string(next(t, c, common.EventTaskDeleted)))
	}

	res = app.do(t, bob.Token, "GET", "/api/v1/notifications", nil)
	assert.Empty(t, res.Body["notifications"])
	res = app.do(t, alice.Token, "GET", "/api/v1/tasks/"+taskID, nil)
	assert.Equal(t, http.StatusNotFound, res.Status)
}

func TestUpdateBroadcastsSnapshot(t *testing.T) {
	app := newTestApp(t, nil)
	alice := app.signUp(t, "alice")
	bob := app.signUp(t, "bob")
	carol := app.signUp(t, "carol")

	res := app.do(t, alice.Token, "POST", "/api/v1/tasks", taskBody("Shared", bob.ID))
	require.Equal(t, http.StatusCreated, res.Status)
	taskID := res.Body["task"].(map[string]interface{})["id"].(string)
	watcher := app.connect(t, carol)

	res = app.do(t, bob.Token, "PATCH", "/api/v1/tasks/"+taskID, map[string]string{"status": "IN_PROGRESS"})
	require.Equal(t, http.StatusOK, res.Status)
	task := res.Body["task"].(map[string]interface{})
	assert.Equal(t, "IN_PROGRESS", task["status"])
	assert.Equal(t, "Shared", task["title"])

	var summary entity.TaskSummary
	require.NoError(t, json.Unmarshal(next(t, watcher, common.EventTaskUpdated), &summary))
	assert.Equal(t, taskID, summary.TaskID)
	assert.Equal(t, entity.StatusInProgress, summary.Status)
	assert.Equal(t, entity.PriorityHigh, summary.Priority)
	require.NotNil(t, summary.AssignedToID)
	assert.Equal(t, bob.ID, *summary.AssignedToID)

	res = app.do(t, carol.Token, "PATCH", "/api/v1/tasks/"+taskID, map[string]string{"status": "COMPLETED"})
	assert.Equal(t, http.StatusForbidden, res.Status)
	res = app.do(t, carol.Token, "GET", "/api/v1/tasks/"+taskID, nil)
	assert.Equal(t, http.StatusForbidden, res.Status)
}

func TestErrorsMapToStatusAndKind(t *testing.T) {
	app := newTestApp(t, nil)
	alice := app.signUp(t, "alice")
	forged, err := common.NewTokenManager("other-secret", "test", time.Hour).Issue(alice.ID)
	require.NoError(t, err)

	cases := []struct {
		name   string
		token  string
		method string
		path   string
		body   interface{}
		status int
		kind   string
	}{
		{"no credential", "", "GET", "/api/v1/tasks", nil, http.StatusUnauthorized, "Unauthenticated"},
		{"forged credential", forged, "GET", "/api/v1/notifications", nil, http.StatusUnauthorized, "InvalidOrExpired"},
		{"unknown assignee", alice.Token, "POST", "/api/v1/tasks", taskBody("x", "ghost"), http.StatusNotFound, "AssignedUserNotFound"},
		{"missing title", alice.Token, "POST", "/api/v1/tasks", taskBody("", ""), http.StatusBadRequest, "ValidationFailed"},
		{"bad filter", alice.Token, "GET", "/api/v1/tasks?status=DONE", nil, http.StatusBadRequest, "ValidationFailed"},
		{"unknown task", alice.Token, "PATCH", "/api/v1/tasks/missing", map[string]string{"title": "x"}, http.StatusNotFound, "NotFound"},
		{"duplicate email", "", "POST", "/api/v1/auth/register", map[string]string{"name": "a", "email": "alice@example.com", "password": "secret1"}, http.StatusConflict, "Conflict"},
		{"wrong password", "", "POST", "/api/v1/auth/login", map[string]string{"email": "alice@example.com", "password": "nope-nope"}, http.StatusUnauthorized, "Unauthenticated"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := app.do(t, tc.token, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.status, res.Status)
			assert.Equal(t, tc.kind, res.Body["error"])
		})
	}
}

func TestSessionCookieLifecycle(t *testing.T) {
	app := newTestApp(t, nil)
	app.signUp(t, "alice")

	body, _ := json.Marshal(map[string]string{"email": "alice@example.com", "password": "secret1"})
	resp, err := app.srv.Client().Post(app.srv.URL+"/api/v1/auth/login", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	var session *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "session" {
			session = c
		}
	}
	require.NotNil(t, session)
	assert.True(t, session.HttpOnly)

	req, _ := http.NewRequest("GET", app.srv.URL+"/api/v1/auth/me", nil)
	req.AddCookie(session)
	resp, err = app.srv.Client().Do(req)
	require.NoError(t, err)
	var me struct {
		User map[string]interface{} `json:"user"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&me))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "alice@example.com", me.User["email"])
	assert.NotContains(t, me.User, "passwordHash")

	res := app.do(t, "", "POST", "/api/v1/auth/logout", nil)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Contains(t, res.Header.Get("Set-Cookie"), "session=;")
}

func TestQueriesAndUsers(t *testing.T) {
	app := newTestApp(t, nil)
	alice := app.signUp(t, "alice")
	bob := app.signUp(t, "bob")

	late := taskBody("late", bob.ID)
	late["dueDate"] = time.Now().Add(-time.Hour).Format(time.RFC3339)
	require.Equal(t, http.StatusCreated, app.do(t, alice.Token, "POST", "/api/v1/tasks", late).Status)
	require.Equal(t, http.StatusCreated, app.do(t, alice.Token, "POST", "/api/v1/tasks", taskBody("later", "")).Status)

	res := app.do(t, alice.Token, "GET", "/api/v1/tasks?sort=dueDate&order=asc", nil)
	require.Equal(t, http.StatusOK, res.Status)
	tasks := res.Body["tasks"].([]interface{})
	require.Len(t, tasks, 2)
	assert.Equal(t, "late", tasks[0].(map[string]interface{})["title"])

	res = app.do(t, bob.Token, "GET", "/api/v1/tasks/overdue", nil)
	assert.Len(t, res.Body["tasks"], 1)

	res = app.do(t, bob.Token, "GET", "/api/v1/tasks/dashboard", nil)
	require.Equal(t, http.StatusOK, res.Status)
	assert.Len(t, res.Body["assignedToMe"], 1)
	assert.Len(t, res.Body["createdByMe"], 0)
	assert.Len(t, res.Body["overdue"], 1)

	res = app.do(t, bob.Token, "PATCH", "/api/v1/notifications/read-all", nil)
	require.Equal(t, http.StatusOK, res.Status)
	assert.EqualValues(t, 1, res.Body["updated"])

	res = app.do(t, bob.Token, "GET", "/api/v1/users", nil)
	require.Equal(t, http.StatusOK, res.Status)
	users := res.Body["users"].([]interface{})
	require.Len(t, users, 2)
	assert.NotContains(t, users[0], "passwordHash")

	res = app.do(t, bob.Token, "PUT", "/api/v1/auth/update", map[string]string{"name": "Robert"})
	require.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, "Robert", res.Body["user"].(map[string]interface{})["name"])
}

func TestHealthAndRateLimit(t *testing.T) {
	m, err := miniredis.Run()
	require.NoError(t, err)
	defer m.Close()
	rdb := redis.NewClient(&redis.Options{Addr: m.Addr()})
	defer rdb.Close()

	app := newTestApp(t, middleware.NewRateLimiter(rdb, 3, time.Minute, zap.NewNop()))
	alice := app.signUp(t, "alice")

	res := app.do(t, "", "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, "ok", res.Body["status"])

	res = app.do(t, alice.Token, "GET", "/api/v1/rate-limit", nil)
	require.Equal(t, http.StatusOK, res.Status)
	assert.EqualValues(t, 2, res.Body["remaining"])

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, app.do(t, alice.Token, "GET", "/api/v1/tasks", nil).Status)
	}
	res = app.do(t, alice.Token, "GET", "/api/v1/tasks", nil)
	assert.Equal(t, http.StatusTooManyRequests, res.Status)
	assert.Equal(t, "RateLimited", res.Body["error"])
}
