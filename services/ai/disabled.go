package aisvc

import (
	"context"

	"github.com/pkg/errors"

	"github.com/lifecraft/backend/core/recommend"
)

var errGenerationDisabled = errors.New("text generation is disabled")

type disabledGenerator struct{}

var _ recommend.Generator = (*disabledGenerator)(nil)

// NewDisabledGenerator returns a generator that always fails, for deployments
// without an AI API key. Callers are expected to degrade gracefully.
func NewDisabledGenerator() *disabledGenerator { return &disabledGenerator{} }

func (g *disabledGenerator) Generate(context.Context, string) (string, error) {
	return "", errGenerationDisabled
}
