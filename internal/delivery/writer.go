// Package delivery writes accepted artifacts and run reports to disk.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/forge/internal/logging"
	"github.com/fyrsmithlabs/forge/internal/pipeline"
)

// ErrUnsafePath is returned for unit paths that would land outside the
// artifact directory.
var ErrUnsafePath = errors.New("unsafe output path")

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// FileWriter writes artifact units under Root/<artifact name>-<run id>/.
// Distinct runs never share a directory, so concurrent runs are independent.
type FileWriter struct {
	root   string
	logger *logging.Logger
}

func NewFileWriter(root string, logger *logging.Logger) *FileWriter {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &FileWriter{root: root, logger: logger}
}

// Dir returns the directory the artifact of run runID is written to. An
// empty runID yields Root/<artifact name>.
func (w *FileWriter) Dir(runID string, artifact *pipeline.CodeArtifact) string {
	name := safeName(artifact.Name)
	if name == "" {
		name = "artifact"
	}
	if id := safeName(runID); id != "" {
		name += "-" + id
	}
	return filepath.Join(w.root, name)
}

func safeName(s string) string {
	return strings.Trim(unsafeName.ReplaceAllString(s, "-"), "-.")
}

// Write writes every unit and returns the written paths in unit order. All
// paths are checked before anything is written.
func (w *FileWriter) Write(ctx context.Context, runID string, artifact *pipeline.CodeArtifact) ([]string, error) {
	if artifact == nil {
		return nil, errors.New("nil artifact")
	}
	dir := w.Dir(runID, artifact)

	targets := make([]string, 0, len(artifact.Units))
	for _, u := range artifact.Units {
		target, err := resolve(dir, u.Path)
		if err != nil {
			return nil, err
		}
		targets = append(targets, target)
	}

	for i, u := range artifact.Units {
		if err := ctx.Err(); err != nil {
			return targets[:i], err
		}
		if err := os.MkdirAll(filepath.Dir(targets[i]), 0o755); err != nil {
			return targets[:i], fmt.Errorf("failed to create directory for %s: %w", u.Path, err)
		}
		if err := writeAtomic(targets[i], []byte(u.Content), 0o644); err != nil {
			return targets[:i], fmt.Errorf("failed to write %s: %w", u.Path, err)
		}
	}

	w.logger.Info(ctx, "artifact written",
		zap.String("dir", dir),
		zap.Int("files", len(targets)),
	)
	return targets, nil
}

// resolve joins rel onto dir, rejecting absolute paths and escapes.
func resolve(dir, rel string) (string, error) {
	if rel == "" || filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") || strings.Contains(rel, "\\") {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, rel)
	}
	target := filepath.Join(dir, filepath.FromSlash(rel))
	back, err := filepath.Rel(dir, target)
	if err != nil || back == "." || back == ".." || strings.HasPrefix(back, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, rel)
	}
	return target, nil
}

// writeAtomic writes data to a uniquely named temp file next to path and
// renames it into place. Concurrent writers to one path never see a partial
// file; the last rename wins.
func writeAtomic(path string, data []byte, perm os.FileMode) error {
	f, err := os.CreateTemp(filepath.Dir(path), ".forge-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Chmod(tmp, perm); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
