package aisvc

import (
	"context"

	"github.com/pkg/errors"
	"google.golang.org/genai"

	"github.com/lifecraft/backend/core"
	"github.com/lifecraft/backend/core/recommend"
)

type geminiGenerator struct {
	client *genai.Client
	model  string
	conf   core.AIConfig
}

var _ recommend.Generator = (*geminiGenerator)(nil)

// NewGeminiGenerator creates a Gemini-backed text generator.
func NewGeminiGenerator(ctx context.Context, conf core.AIConfig) (*geminiGenerator, error) {
	if conf.APIKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: conf.APIKey,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating gemini client")
	}
	return &geminiGenerator{client: client, model: conf.Model, conf: conf}, nil
}

func (g *geminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if g.conf.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.conf.Timeout)
		defer cancel()
	}

	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}
	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", errors.Wrap(err, "generating content")
	}

	text := result.Text()
	if text == "" {
		return "", errors.New("empty model response")
	}
	return text, nil
}
