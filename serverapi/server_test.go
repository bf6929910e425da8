package serverapi_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tourdesk/tourdesk/apiframework"
	"github.com/tourdesk/tourdesk/chatstore"
	"github.com/tourdesk/tourdesk/libauth"
	"github.com/tourdesk/tourdesk/libbus"
	libdb "github.com/tourdesk/tourdesk/libdbexec"
	"github.com/tourdesk/tourdesk/serverapi"
)

const testSecret = "test-secret"

func setupServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	db, err := libdb.NewSQLiteDBManager(ctx, ":memory:", chatstore.Schema)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })

	bus := libbus.NewInMem()
	t.Cleanup(func() { _ = bus.Close() })

	mux := http.NewServeMux()
	config := &serverapi.Config{JWTSecret: testSecret}
	cleanup, err := serverapi.New(ctx, mux, "node-test", "tenant-test", config, db, bus, nil)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, cleanup()) })

	var handler http.Handler = mux
	handler = apiframework.AuthMiddleware(config.JWTSecret, handler)
	handler = apiframework.RequestIDMiddleware(handler)

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func TestUnit_ServerHealthNeedsNoToken(t *testing.T) {
	server := setupServer(t)

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUnit_ServerRejectsMissingToken(t *testing.T) {
	server := setupServer(t)

	resp, err := http.Post(server.URL+"/api/conversations", "application/json", strings.NewReader(`{"title":"x"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUnit_ServerRejectsExpiredToken(t *testing.T) {
	server := setupServer(t)

	token, err := libauth.NewToken([]byte(testSecret), "alice", -time.Minute)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, server.URL+"/api/conversations", strings.NewReader(`{"title":"x"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUnit_ServerAcceptsValidToken(t *testing.T) {
	server := setupServer(t)

	token, err := libauth.NewToken([]byte(testSecret), "alice", time.Hour)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, server.URL+"/api/conversations", strings.NewReader(`{"title":"front desk"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestUnit_LoadConfigFromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "file:chat.db")
	t.Setenv("NATS_URL", "nats://localhost:4222")
	t.Setenv("JWT_SECRET", "sekrit")

	config := &serverapi.Config{}
	require.NoError(t, serverapi.LoadConfig(config))
	assert.Equal(t, "file:chat.db", config.DatabaseURL)
	assert.Equal(t, "nats://localhost:4222", config.NATSURL)
	assert.Equal(t, "sekrit", config.JWTSecret)
}
