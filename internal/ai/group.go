package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	appErr "github.com/xxxsen/dsforge/internal/pkg/errors"
)

// GeneratorEntry is one model in a fallback chain, named "<provider>/<model>".
type GeneratorEntry struct {
	Name      string
	Generator IGenerator
}

type groupGenerator struct {
	items []GeneratorEntry
}

// NewGroupGenerator tries each entry in order and returns the first success.
func NewGroupGenerator(items []GeneratorEntry) IGenerator {
	live := make([]GeneratorEntry, 0, len(items))
	for _, item := range items {
		if item.Generator != nil {
			live = append(live, item)
		}
	}
	if len(live) == 0 {
		return nil
	}
	return &groupGenerator{items: live}
}

// Generate stops early once the context is done. When every entry fails the
// error joins each failure and matches ErrUnavailable.
func (g *groupGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	failures := make([]error, 0, len(g.items))
	for _, item := range g.items {
		res, err := item.Generator.Generate(ctx, prompt)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return "", err
		}
		logutil.GetLogger(ctx).Warn("model failed, trying next", zap.String("model", item.Name), zap.Error(err))
		failures = append(failures, fmt.Errorf("%s: %w", item.Name, err))
	}
	return "", fmt.Errorf("all models failed: %w", errors.Join(append(failures, appErr.ErrUnavailable)...))
}

func groupName(items []GeneratorEntry) string {
	names := make([]string, 0, len(items))
	for _, item := range items {
		if item.Name != "" {
			names = append(names, item.Name)
		}
	}
	return strings.Join(names, "|")
}
