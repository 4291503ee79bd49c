package history

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/nixlim/failloc/internal/config"
)

// NewStore opens the history configured by cfg. It returns nil when history
// is disabled or the database cannot be opened; the latter is logged and
// never fails the caller.
func NewStore(cfg config.HistoryConfig, logger *zap.Logger) *Store {
	if cfg.DBPath == "" {
		return nil
	}

	dbPath := expandTilde(cfg.DBPath)

	store, err := Open(dbPath)
	if err != nil {
		logger.Warn("history unavailable, continuing without it",
			zap.String("db_path", dbPath),
			zap.Error(err),
		)
		return nil
	}
	return store
}

func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
