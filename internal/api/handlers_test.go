package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"raven-chat/internal/auth"
	"raven-chat/internal/messagelog"
	"raven-chat/internal/middleware"
	"raven-chat/internal/models"
	"raven-chat/internal/rooms"
	"raven-chat/internal/testutils"
	"raven-chat/internal/types"
)

type pinger struct{ err error }

func (p pinger) Ping(ctx context.Context) error { return p.err }

type env struct {
	e        *echo.Echo
	token    string
	messages *testutils.Messages
	log      *messagelog.Log
}

func newEnv(t *testing.T, db Pinger) *env {
	t.Helper()
	roomStore := testutils.NewRooms()
	messages := testutils.NewMessages()
	log := messagelog.New(messages, messagelog.Options{})
	svc := rooms.NewService(roomStore, testutils.NewConnections(), log, models.DefaultRoomNamespace)
	authorizer := auth.NewAuthorizer("secret", roomStore, models.DefaultRoomNamespace)

	token, err := authorizer.IssueToken("alice", time.Minute)
	require.NoError(t, err)

	e := echo.New()
	e.Validator = NewValidator()
	NewHandler(svc, log, db).Register(e, middleware.Authenticate(authorizer))
	return &env{e: e, token: token, messages: messages, log: log}
}

func (v *env) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+v.token)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	v.e.ServeHTTP(rec, req)
	return rec
}

func TestRoomLifecycle(t *testing.T) {
	v := newEnv(t, pinger{})

	rec := v.do(t, http.MethodPost, "/v1/rooms", `{"name":"lobby"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created types.RoomDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "lobby", created.Name)
	assert.Equal(t, "alice", created.CreatorID)
	assert.Equal(t, "ready", created.Status)

	rec = v.do(t, http.MethodPost, "/v1/rooms", `{"name":"lobby"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = v.do(t, http.MethodGet, "/v1/rooms", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []types.RoomDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, []types.RoomDTO{created}, list)

	rec = v.do(t, http.MethodGet, "/v1/rooms/lobby", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = v.do(t, http.MethodDelete, "/v1/rooms/lobby", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = v.do(t, http.MethodGet, "/v1/rooms/lobby", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = v.do(t, http.MethodDelete, "/v1/rooms/lobby", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateRoom_Validation(t *testing.T) {
	v := newEnv(t, pinger{})

	assert.Equal(t, http.StatusBadRequest, v.do(t, http.MethodPost, "/v1/rooms", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, v.do(t, http.MethodPost, "/v1/rooms", `{"name":`).Code)
	assert.Equal(t, http.StatusBadRequest, v.do(t, http.MethodPost, "/v1/rooms", `{"name":"`+strings.Repeat("x", 65)+`"}`).Code)
}

func TestHistory(t *testing.T) {
	v := newEnv(t, pinger{})
	require.Equal(t, http.StatusCreated, v.do(t, http.MethodPost, "/v1/rooms", `{"name":"lobby"}`).Code)

	roomID := models.RoomID(models.DefaultRoomNamespace, "lobby")
	ctx := context.Background()
	for i, body := range []string{"one", "two", "three"} {
		_, err := v.log.Append(ctx, models.Message{RoomID: roomID, TimeSent: int64(100 + i), Sender: "bob", Action: models.ActionMessage, Body: body})
		require.NoError(t, err)
	}
	_, err := v.log.Append(ctx, models.Message{RoomID: roomID, TimeSent: 99, Sender: models.ServerSender, Action: models.ActionConnect, Body: "bob"})
	require.NoError(t, err)

	rec := v.do(t, http.MethodGet, "/v1/rooms/lobby/messages?after=100&limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp types.HistoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "lobby", resp.RoomName)
	assert.Equal(t, []types.MessageDTO{
		{TimeSent: 102, Sender: "bob", Action: "message", Message: "three"},
		{TimeSent: 101, Sender: "bob", Action: "message", Message: "two"},
	}, resp.Messages)

	rec = v.do(t, http.MethodGet, "/v1/rooms/lobby/messages?before=99", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []types.MessageDTO{{TimeSent: 99, Sender: "$server", Action: "$connect", Message: "bob"}}, resp.Messages)

	assert.Equal(t, http.StatusBadRequest, v.do(t, http.MethodGet, "/v1/rooms/lobby/messages?limit=5000", "").Code)
	assert.Equal(t, http.StatusBadRequest, v.do(t, http.MethodGet, "/v1/rooms/lobby/messages?after=abc", "").Code)
	assert.Equal(t, http.StatusNotFound, v.do(t, http.MethodGet, "/v1/rooms/nowhere/messages", "").Code)
}

func TestRequiresAuthentication(t *testing.T) {
	v := newEnv(t, pinger{})
	req := httptest.NewRequest(http.MethodGet, "/v1/rooms", nil)
	rec := httptest.NewRecorder()
	v.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealth(t *testing.T) {
	for _, tt := range []struct {
		name   string
		err    error
		status int
	}{
		{name: "up", status: http.StatusOK},
		{name: "down", err: errors.New("no db"), status: http.StatusServiceUnavailable},
	} {
		t.Run(tt.name, func(t *testing.T) {
			v := newEnv(t, pinger{err: tt.err})
			req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
			rec := httptest.NewRecorder()
			v.e.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}
