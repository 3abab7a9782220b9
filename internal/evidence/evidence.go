// Package evidence writes screenshots of the active page at named checkpoints.
package evidence

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/renewbot/api/schemas"
	"github.com/xkilldash9x/renewbot/internal/config"
)

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9]`)

// SafeName replaces every character outside [a-zA-Z0-9] with an underscore so
// an identifier can be used as a file name prefix.
func SafeName(identifier string) string {
	return unsafeChars.ReplaceAllString(identifier, "_")
}

// Recorder captures evidence images into a directory.
type Recorder struct {
	dir    string
	logger *zap.Logger
	now    func() time.Time
}

// NewRecorder resolves the evidence directory. The directory itself is created
// lazily on first capture.
func NewRecorder(cfg config.EvidenceConfig, logger *zap.Logger) (*Recorder, error) {
	dir, err := homedir.Expand(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to expand evidence dir %q: %w", cfg.Dir, err)
	}
	return &Recorder{
		dir:    dir,
		logger: logger.Named("evidence"),
		now:    time.Now,
	}, nil
}

// Dir returns the resolved evidence directory.
func (r *Recorder) Dir() string {
	return r.dir
}

// Capture writes a full-page screenshot to <dir>/<safe identifier>_<label>.png.
// Failures are logged and yield a nil shot; capture never fails the caller.
func (r *Recorder) Capture(ctx context.Context, page schemas.Screenshotter, identifier, label string) *schemas.Shot {
	logger := r.logger.With(zap.String("identifier", identifier), zap.String("label", label))
	if page == nil {
		logger.Warn("No page to capture.")
		return nil
	}

	img, err := page.Screenshot(ctx)
	if err != nil {
		logger.Warn("Screenshot failed.", zap.Error(err))
		return nil
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		logger.Warn("Could not create evidence directory.", zap.String("dir", r.dir), zap.Error(err))
		return nil
	}

	path := filepath.Join(r.dir, fmt.Sprintf("%s_%s.png", SafeName(identifier), label))
	if err := os.WriteFile(path, img, 0o644); err != nil {
		logger.Warn("Could not write evidence file.", zap.String("path", path), zap.Error(err))
		return nil
	}

	logger.Debug("Evidence captured.", zap.String("path", path), zap.Int("bytes", len(img)))
	return &schemas.Shot{Path: path, Label: label, Taken: r.now()}
}
