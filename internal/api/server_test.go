package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/caption/internal/hermes"
	"github.com/MikeSquared-Agency/caption/internal/notify"
	"github.com/MikeSquared-Agency/caption/internal/session"
	"github.com/MikeSquared-Agency/caption/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingTrigger struct {
	mu      sync.Mutex
	stored  []hermes.MessageStoredEvent
	deleted []hermes.SessionDeletedEvent
}

func (r *recordingTrigger) OnMessageStored(evt hermes.MessageStoredEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stored = append(r.stored, evt)
}

func (r *recordingTrigger) OnSessionDeleted(evt hermes.SessionDeletedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, evt)
}

type fixture struct {
	srv     *Server
	store   *store.SQLite
	trigger *recordingTrigger
	hub     *notify.Hub
}

func newFixture(t *testing.T, token string) *fixture {
	t.Helper()
	s, err := store.NewSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	hub := notify.NewHub(8, testLogger())
	trigger := &recordingTrigger{}
	srv := NewServer(Config{Port: 8760, APIToken: token}, s, trigger, hub, hub, testLogger())
	return &fixture{srv: srv, store: s, trigger: trigger, hub: hub}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, buf)
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v))
	return v
}

func (f *fixture) createSession(t *testing.T, owner string) session.Session {
	t.Helper()
	w := f.do(t, "POST", "/api/v1/sessions", map[string]string{"owner_id": owner})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[session.Session](t, w)
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t, "")

	w := f.do(t, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, w)["status"])
}

func TestStatusEndpoint(t *testing.T) {
	f := newFixture(t, "")

	w := f.do(t, "GET", "/api/v1/caption/status", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]string](t, w)
	assert.Equal(t, "caption", body["agent"])
	assert.Equal(t, "running", body["status"])
}

func TestNotFoundEndpoint(t *testing.T) {
	f := newFixture(t, "")
	w := f.do(t, "GET", "/nonexistent", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBearerAuth(t *testing.T) {
	f := newFixture(t, "secret")

	w := f.do(t, "GET", "/api/v1/caption/status", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest("GET", "/api/v1/caption/status", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest("GET", "/api/v1/caption/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// Health stays open for probes.
	assert.Equal(t, http.StatusOK, f.do(t, "GET", "/health", nil).Code)
}

func TestCreateAndGetSession(t *testing.T) {
	f := newFixture(t, "")
	owner := uuid.NewString()

	created := f.createSession(t, owner)
	assert.Equal(t, owner, created.OwnerID)
	assert.Equal(t, session.DefaultPlaceholder, created.Label)

	w := f.do(t, "GET", "/api/v1/sessions/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, created.ID, decode[session.Session](t, w).ID)

	w = f.do(t, "GET", "/api/v1/sessions/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, "GET", "/api/v1/sessions/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, "POST", "/api/v1/sessions", map[string]string{"owner_id": "bob"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAppendMessage_TriggersCoordinator(t *testing.T) {
	f := newFixture(t, "")
	owner := uuid.NewString()
	sess := f.createSession(t, owner)

	for i, content := range []string{"my knee hurts", "since when?", "monday"} {
		role := session.RoleUser
		if i == 1 {
			role = session.RoleAssistant
		}
		w := f.do(t, "POST", "/api/v1/sessions/"+sess.ID+"/messages", map[string]string{"role": role, "content": content})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		assert.Equal(t, i+1, decode[appendMessageResponse](t, w).MessageCount)
	}

	require.Len(t, f.trigger.stored, 3)
	assert.Equal(t, hermes.MessageStoredEvent{SessionID: sess.ID, OwnerID: owner, MessageCount: 3}, f.trigger.stored[2])
}

func TestAppendMessage_Validation(t *testing.T) {
	f := newFixture(t, "")
	sess := f.createSession(t, uuid.NewString())
	path := "/api/v1/sessions/" + sess.ID + "/messages"

	assert.Equal(t, http.StatusBadRequest, f.do(t, "POST", path, map[string]string{"role": "tool", "content": "x"}).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(t, "POST", path, map[string]string{"role": "user", "content": "  "}).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, "POST", "/api/v1/sessions/"+uuid.NewString()+"/messages",
		map[string]string{"role": "user", "content": "hello"}).Code)

	req := httptest.NewRequest("POST", path, strings.NewReader("{bad"))
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, f.trigger.stored)
}

func TestRenameSession(t *testing.T) {
	f := newFixture(t, "")
	owner := uuid.NewString()
	sess := f.createSession(t, owner)
	sub := f.hub.Subscribe(owner)
	defer sub.Close()

	w := f.do(t, "PATCH", "/api/v1/sessions/"+sess.ID, map[string]string{"label": "  Left   Knee  "})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[session.Session](t, w)
	assert.Equal(t, "Left Knee", got.Label)
	assert.True(t, got.LabelManual)
	assert.True(t, got.LabelGenerationAttempted)

	require.Len(t, sub.C, 1)
	evt := <-sub.C
	assert.Equal(t, "Left Knee", evt.NewLabel)

	assert.Equal(t, http.StatusBadRequest, f.do(t, "PATCH", "/api/v1/sessions/"+sess.ID, map[string]string{"label": " "}).Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, "PATCH", "/api/v1/sessions/"+uuid.NewString(), map[string]string{"label": "x"}).Code)
}

func TestDeleteSession(t *testing.T) {
	f := newFixture(t, "")
	owner := uuid.NewString()
	sess := f.createSession(t, owner)

	w := f.do(t, "DELETE", "/api/v1/sessions/"+sess.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	require.Len(t, f.trigger.deleted, 1)
	assert.Equal(t, hermes.SessionDeletedEvent{SessionID: sess.ID, OwnerID: owner}, f.trigger.deleted[0])

	w = f.do(t, "DELETE", "/api/v1/sessions/"+sess.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListSessions(t *testing.T) {
	f := newFixture(t, "")
	owner := uuid.NewString()
	a := f.createSession(t, owner)
	b := f.createSession(t, owner)
	f.createSession(t, uuid.NewString())

	_, err := f.store.WriteLabel(context.Background(), a.ID, "Knee Pain")
	require.NoError(t, err)

	w := f.do(t, "GET", "/api/v1/owners/"+owner+"/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[listResponse](t, w)
	assert.Equal(t, 2, body.Count)

	labels := map[string]string{}
	for _, s := range body.Sessions {
		labels[s.ID] = s.Label
	}
	assert.Equal(t, map[string]string{a.ID: "Knee Pain", b.ID: session.DefaultPlaceholder}, labels)

	w = f.do(t, "GET", "/api/v1/owners/"+uuid.NewString()+"/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"sessions":[],"count":0}`, w.Body.String())
}

func TestLiveWebsocket(t *testing.T) {
	f := newFixture(t, "secret")
	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()

	owner := uuid.NewString()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/owners/" + owner + "/live"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	header := http.Header{"Authorization": []string{"Bearer secret"}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return f.hub.Observers(owner) == 1 }, 2*time.Second, 10*time.Millisecond)

	f.hub.Publish(notify.Event{SessionID: "s1", OwnerID: owner, NewLabel: "Sore Throat", EmittedAt: time.Now().UTC()})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var evt notify.Event
	require.NoError(t, conn.ReadJSON(&evt))
	assert.Equal(t, "s1", evt.SessionID)
	assert.Equal(t, "Sore Throat", evt.NewLabel)

	conn.Close()
	require.Eventually(t, func() bool { return f.hub.Observers(owner) == 0 }, 2*time.Second, 10*time.Millisecond)
}

type failingBus struct{ err error }

func (b failingBus) Publish(string, any) error { return b.err }

func TestBusTrigger_LogsPublishFailure(t *testing.T) {
	trig := NewBusTrigger(failingBus{err: errors.New("nats: connection closed")}, testLogger())
	assert.NotPanics(t, func() {
		trig.OnMessageStored(hermes.MessageStoredEvent{SessionID: "s1", MessageCount: 3})
		trig.OnSessionDeleted(hermes.SessionDeletedEvent{SessionID: "s1"})
	})
}
