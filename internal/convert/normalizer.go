// Package convert turns uploaded agreement documents into a canonical PDF.
package convert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/YorickdeJong/energy-contracts/constants"
	"github.com/YorickdeJong/energy-contracts/internal/common"
	"github.com/YorickdeJong/energy-contracts/internal/logging"
)

// Config holds Normalizer settings.
type Config struct {
	OfficeBinary string        // headless office suite, e.g. soffice or libreoffice
	Timeout      time.Duration // wall-clock cap for one office conversion
	TempDir      string        // parent for temp artifacts; "" means os.TempDir()
}

// ConfigFrom maps the application convert section.
func ConfigFrom(c common.ConvertConfig) Config {
	return Config{OfficeBinary: c.OfficeBinary, Timeout: c.Timeout, TempDir: c.TempDir}
}

// Normalizer converts documents to PDF and owns every temp artifact it creates
// until Cleanup. A Normalizer is meant for one pipeline run.
type Normalizer struct {
	cfg    Config
	runner Runner
	logger *slog.Logger

	mu    sync.Mutex
	temps []string
}

func New(cfg Config, runner Runner, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	if runner == nil {
		runner = NewExecRunner(logger)
	}
	if cfg.OfficeBinary == "" {
		cfg.OfficeBinary = "soffice"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Normalizer{cfg: cfg, runner: runner, logger: logger}
}

// Normalize returns a path to a PDF rendition of path. PDFs and unknown
// extensions come back unchanged; everything else is written to a tracked temp
// directory. On failure nothing created by this call is left behind.
func (n *Normalizer) Normalize(ctx context.Context, path string) (string, error) {
	ext := filepath.Ext(path)
	kind := constants.ConversionFor(ext)
	start := time.Now()

	switch kind {
	case constants.ConvertPassive:
		n.logger.Debug("convert.passthrough", "path", path)
		return path, nil
	case constants.ConvertNone:
		n.logger.Warn("convert.unknown_extension", "path", path, "ext", ext)
		return path, nil
	}

	dir, err := os.MkdirTemp(n.cfg.TempDir, "convert-*")
	if err != nil {
		return "", common.NewAppError(common.CodeConversion, "create temp dir", err)
	}

	var out string
	switch kind {
	case constants.ConvertOffice:
		out, err = n.convertOffice(ctx, path, dir)
	case constants.ConvertImage:
		out, err = convertImage(path, dir)
	}
	if err == nil {
		err = checkOutput(out)
	}
	if err != nil {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			n.logger.Warn("convert.cleanup_failed", "dir", dir, "error", rmErr)
		}
		n.logger.Error("convert.failed", "path", path, "ext", ext, "elapsed_ms", time.Since(start).Milliseconds(), "error", err)
		var ae *common.AppError
		if errors.As(err, &ae) {
			return "", err
		}
		return "", common.NewAppError(common.CodeConversion, fmt.Sprintf("could not convert %s to PDF", filepath.Base(path)), err)
	}

	n.track(dir)
	n.logger.Info("convert.ok", "path", path, "out", out, "elapsed_ms", time.Since(start).Milliseconds())
	return out, nil
}

func (n *Normalizer) convertOffice(ctx context.Context, path, dir string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()

	_, stderr, err := n.runner.Run(ctx, n.cfg.OfficeBinary,
		"--headless", "--convert-to", "pdf", "--outdir", dir, path)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", common.NewAppError(common.CodeConversion,
			fmt.Sprintf("document conversion timed out after %s", n.cfg.Timeout), ctx.Err())
	}
	if err != nil {
		msg := strings.TrimSpace(logging.Truncate(string(stderr), 512))
		if msg == "" {
			msg = err.Error()
		}
		return "", common.NewAppError(common.CodeConversion, "document conversion failed: "+msg, err)
	}

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return filepath.Join(dir, stem+".pdf"), nil
}

func checkOutput(out string) error {
	st, err := os.Stat(out)
	if err != nil {
		return common.NewAppError(common.CodeConversion, "conversion produced no output", err)
	}
	if st.Size() == 0 {
		return common.NewAppError(common.CodeConversion, "conversion produced an empty file", nil)
	}
	return nil
}

func (n *Normalizer) track(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.temps = append(n.temps, path)
}

// TempFiles returns the artifacts currently owned by the Normalizer.
func (n *Normalizer) TempFiles() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.temps...)
}

// Cleanup removes every tracked artifact. Safe to call more than once.
func (n *Normalizer) Cleanup() {
	n.mu.Lock()
	temps := n.temps
	n.temps = nil
	n.mu.Unlock()

	for _, p := range temps {
		if err := os.RemoveAll(p); err != nil {
			n.logger.Warn("convert.cleanup_failed", "path", p, "error", err)
		}
	}
}
