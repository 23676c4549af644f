package watcher

import (
	"path/filepath"
	"strings"
	"time"
)

// Options configures the backup root watcher.
type Options struct {
	IgnorePatterns []string
	// Debounce is the quiet period after the last change before OnChange fires.
	Debounce     time.Duration
	IgnoreHidden bool
}

// setDefaults applies default values to unset options.
func (o *Options) setDefaults() {
	if o.Debounce <= 0 {
		o.Debounce = 2 * time.Second
	}

	// nil means "use defaults"; an explicit empty slice disables them.
	if o.IgnorePatterns == nil {
		o.IgnorePatterns = []string{
			"*.tmp",
			"*.swp",
			".DS_Store",
		}
		o.IgnoreHidden = true
	}
}

// shouldIgnore checks rel, a path relative to the watched root.
func (o *Options) shouldIgnore(rel string) bool {
	rel = filepath.Clean(rel)
	if rel == "." {
		return false
	}

	if o.IgnoreHidden {
		for _, part := range strings.Split(rel, string(filepath.Separator)) {
			if strings.HasPrefix(part, ".") && part != "." && part != ".." {
				return true
			}
		}
	}

	base := filepath.Base(rel)
	for _, pattern := range o.IgnorePatterns {
		if matched, err := filepath.Match(pattern, base); err == nil && matched {
			return true
		}
	}
	return false
}
