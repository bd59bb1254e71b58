// Package collector produces validated requirement specs from flags, files,
// stdin or an interactive form.
package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fyrsmithlabs/forge/internal/pipeline"
)

// MaxRequirementBytes caps requirement text read from files and streams.
const MaxRequirementBytes = 1 << 20

// ErrTooLarge is returned when requirement input exceeds MaxRequirementBytes.
var ErrTooLarge = errors.New("requirement input too large")

// StaticCollector returns a spec built from fixed values. When Path is set
// the requirement text is read from that file instead of Base.Text.
type StaticCollector struct {
	Base pipeline.RequirementSpec
	Path string
}

func (c *StaticCollector) Collect(ctx context.Context) (pipeline.RequirementSpec, error) {
	if err := ctx.Err(); err != nil {
		return pipeline.RequirementSpec{}, err
	}
	spec := c.Base.Clone()
	if c.Path != "" {
		f, err := os.Open(c.Path)
		if err != nil {
			return pipeline.RequirementSpec{}, fmt.Errorf("open requirement file: %w", err)
		}
		defer f.Close()
		text, err := readLimited(f)
		if err != nil {
			return pipeline.RequirementSpec{}, fmt.Errorf("read requirement file %s: %w", c.Path, err)
		}
		spec.Text = text
	}
	return pipeline.NewRequirementSpec(spec)
}

// ReaderCollector reads the requirement text from R, typically stdin.
type ReaderCollector struct {
	R    io.Reader
	Base pipeline.RequirementSpec
}

func (c *ReaderCollector) Collect(ctx context.Context) (pipeline.RequirementSpec, error) {
	if c.R == nil {
		return pipeline.RequirementSpec{}, errors.New("reader collector has no input")
	}
	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := readLimited(c.R)
		done <- result{text, err}
	}()

	select {
	case <-ctx.Done():
		return pipeline.RequirementSpec{}, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return pipeline.RequirementSpec{}, fmt.Errorf("read requirement: %w", r.err)
		}
		spec := c.Base.Clone()
		spec.Text = r.text
		return pipeline.NewRequirementSpec(spec)
	}
}

func readLimited(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxRequirementBytes+1))
	if err != nil {
		return "", err
	}
	if len(data) > MaxRequirementBytes {
		return "", fmt.Errorf("%w: more than %d bytes", ErrTooLarge, MaxRequirementBytes)
	}
	return string(data), nil
}
