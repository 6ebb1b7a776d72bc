package scratch

import (
	"fmt"

	"photobox/internal/box"
	"photobox/internal/config"
)

// DefaultMaxSize is the default maximum scratch area size (256MB).
const DefaultMaxSize int64 = 256 * 1024 * 1024

// NewScratchAreaFromConfig creates a ScratchArea implementation based on the config type.
func NewScratchAreaFromConfig(cfg config.ScratchConfig, logger box.Logger) (box.ScratchArea, error) {
	maxSize := cfg.MaxSize
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}

	switch cfg.Type {
	case "memory":
		return NewMemoryScratchArea(maxSize, logger), nil
	case "filesystem":
		if cfg.ScratchDir == "" {
			return nil, fmt.Errorf("filesystem scratch area requires scratch_dir to be set")
		}
		return NewFileSystemScratchArea(cfg.ScratchDir, maxSize, logger)
	default:
		return nil, fmt.Errorf("unknown scratch area type: %s", cfg.Type)
	}
}
