package main

import (
	"flag"
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/yeossan/ChatProgramming/internal/chat"
)

type config struct {
	chat        chat.Config
	metricsAddr string
	logLevel    slog.Level
}

// loadConfig reads an optional .env file, then lets flags override the
// environment.
func loadConfig(args []string) (config, error) {
	envErr := godotenv.Load()

	cfg := config{
		chat: chat.Config{
			Addr:       envOr("CHAT_ADDR", ":12345"),
			WSAddr:     envOr("CHAT_WS_ADDR", ""),
			SinkBuffer: envInt("CHAT_SINK_BUFFER", 64),
		},
		metricsAddr: envOr("CHAT_METRICS_ADDR", ":9090"),
		logLevel:    parseLevel(os.Getenv("LOG_LEVEL")),
	}

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.StringVar(&cfg.chat.Addr, "addr", cfg.chat.Addr, "chat listen address")
	fs.StringVar(&cfg.chat.WSAddr, "ws-addr", cfg.chat.WSAddr, "websocket listen address (empty disables)")
	fs.StringVar(&cfg.metricsAddr, "metrics-addr", cfg.metricsAddr, "metrics listen address (empty disables)")
	fs.IntVar(&cfg.chat.SinkBuffer, "sink-buffer", cfg.chat.SinkBuffer, "outbound lines queued per connection")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if envErr != nil {
		slog.Debug("no .env file found, using environment variables")
	}
	return cfg, nil
}

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
