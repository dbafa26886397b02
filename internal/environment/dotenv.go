package environment

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// loadDotEnv loads dir/.env if present; optional, never fatal.
// Provider API keys are the only thing it's expected to supply, and an
// environment with none configured is still valid (it just can't run a
// turn yet).
func loadDotEnv(dir string) {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return
	}
	if err := godotenv.Load(path); err != nil {
		slog.Debug("failed to load .env file", "path", path, "error", err)
	}
}
