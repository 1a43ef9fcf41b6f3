package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeossan/ChatProgramming/internal/chat"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig(nil)
	require.NoError(t, err)

	assert.Equal(t, ":12345", cfg.chat.Addr)
	assert.Equal(t, "", cfg.chat.WSAddr)
	assert.Equal(t, 64, cfg.chat.SinkBuffer)
	assert.Equal(t, ":9090", cfg.metricsAddr)
	assert.Equal(t, slog.LevelInfo, cfg.logLevel)
}

func TestLoadConfig_EnvThenFlags(t *testing.T) {
	t.Setenv("CHAT_ADDR", ":7000")
	t.Setenv("CHAT_WS_ADDR", ":7001")
	t.Setenv("CHAT_SINK_BUFFER", "not-a-number")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := loadConfig([]string{"-addr", ":8000", "-metrics-addr", ""})
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.chat.Addr)
	assert.Equal(t, ":7001", cfg.chat.WSAddr)
	assert.Equal(t, 64, cfg.chat.SinkBuffer)
	assert.Equal(t, "", cfg.metricsAddr)
	assert.Equal(t, slog.LevelDebug, cfg.logLevel)
}

func TestLoadConfig_BadFlag(t *testing.T) {
	_, err := loadConfig([]string{"-nope"})
	assert.Error(t, err)
}

func TestMetricsServer_Healthz(t *testing.T) {
	reg := chat.NewRegistry(8, nil)
	go reg.Run()
	t.Cleanup(func() {
		reg.Stop()
		reg.Wait()
	})
	_, err := reg.CreateRoom()
	require.NoError(t, err)

	srv := newMetricsServer(":0", reg)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(1), body["rooms"])
	assert.Equal(t, float64(0), body["clients"])

	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "chat_rooms")
}
