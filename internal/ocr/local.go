package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/DruboPaul/web-surveyscriber/constants"
)

// LocalConfig configures the locally installed OCR executable.
type LocalConfig struct {
	ExecutablePath string
	Language       string        // tesseract language code, default "eng"
	Timeout        time.Duration // default 120s
}

// Local wraps any CLI OCR tool that accepts an image path and prints text.
// Binaries whose name contains "tesseract" get the tesseract argument form;
// anything else is invoked as `exe image` and read from stdout.
type Local struct {
	cfg    LocalConfig
	runner Runner
	logger *slog.Logger
}

func NewLocal(cfg LocalConfig, logger *slog.Logger) *Local {
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{cfg: cfg, runner: execRunner{}, logger: logger}
}

func (l *Local) Name() constants.OCREngineName { return constants.EngineLocal }

// GetText runs the executable on the image and returns its stdout.
func (l *Local) GetText(ctx context.Context, imagePath string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
	defer cancel()

	exe := strings.ToLower(filepath.Base(l.cfg.ExecutablePath))
	var args []string
	if strings.Contains(exe, "tesseract") {
		args = []string{imagePath, "stdout", "-l", l.cfg.Language}
	} else {
		args = []string{imagePath}
	}

	out, errb, err := l.runner.Run(ctx, l.cfg.ExecutablePath, args...)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("local ocr timed out (%s)", l.cfg.Timeout)
		}
		msg := strings.TrimSpace(string(errb))
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("local ocr failed: %s", msg)
	}
	return strings.TrimSpace(string(out)), nil
}
