// Package validator checks generated artifacts.
//
// Validators report problems as diagnostics inside a Verdict. An error return
// means the validator itself broke down.
package validator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/forge/internal/logging"
	"github.com/fyrsmithlabs/forge/internal/pipeline"
)

// Chain runs validators in order and concatenates their diagnostics.
type Chain struct {
	members []pipeline.Validator
	logger  *logging.Logger
}

// NewChain returns a chain over members. Nil members are ignored.
func NewChain(logger *logging.Logger, members ...pipeline.Validator) *Chain {
	if logger == nil {
		logger = logging.NewNop()
	}
	c := &Chain{logger: logger}
	for _, m := range members {
		if m != nil {
			c.members = append(c.members, m)
		}
	}
	return c
}

// Name lists the member names.
func (c *Chain) Name() string {
	names := make([]string, 0, len(c.members))
	for _, m := range c.members {
		names = append(names, m.Name())
	}
	return "chain(" + strings.Join(names, ",") + ")"
}

// Validate runs every member. A member fault aborts the chain.
func (c *Chain) Validate(ctx context.Context, artifact *pipeline.CodeArtifact) (pipeline.Verdict, error) {
	var diags []pipeline.Diagnostic
	for _, m := range c.members {
		if err := ctx.Err(); err != nil {
			return pipeline.Verdict{}, err
		}
		v, err := m.Validate(ctx, artifact)
		if err != nil {
			return pipeline.Verdict{}, fmt.Errorf("validator %s: %w", m.Name(), err)
		}
		if err := v.Check(); err != nil {
			return pipeline.Verdict{}, fmt.Errorf("validator %s: %w", m.Name(), err)
		}
		if !v.Valid && len(v.Errors) == 0 {
			return pipeline.Verdict{}, fmt.Errorf("validator %s: invalid verdict without diagnostics", m.Name())
		}
		c.logger.Debug(ctx, "validator finished",
			zap.String("validator", m.Name()),
			zap.Int("diagnostics", len(v.Errors)),
		)
		diags = append(diags, v.Errors...)
	}
	return pipeline.VerdictFrom(diags), nil
}
