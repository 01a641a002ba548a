// Package imagegen turns prompts into images using the Gemini API.
package imagegen

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/kanojo/studio/internal/models"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.0-flash-exp"

const promptTemplate = "Generate a high-quality portrait photograph with the following description: %s. Make it professional, well-lit, and aesthetically pleasing."

// ErrNoImage is returned when the response carries no inline image data.
var ErrNoImage = errors.New("no image data in response")

// GeminiGenerator implements generations.Generator on top of the genai SDK.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

// Options tweak client construction. BaseURL is only set in tests.
type Options struct {
	BaseURL string
}

// NewGeminiGenerator creates a client for the Gemini developer API.
func NewGeminiGenerator(ctx context.Context, apiKey, model string, opts Options) (*GeminiGenerator, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GeminiGenerator{client: client, model: model}, nil
}

// Prompt renders the text sent to the model for a user prompt.
func Prompt(userPrompt string) string {
	return fmt.Sprintf(promptTemplate, userPrompt)
}

// Generate asks the model for an image matching prompt.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (models.Image, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(Prompt(prompt), genai.RoleUser),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	})
	if err != nil {
		return models.Image{}, fmt.Errorf("gemini generate content: %w", err)
	}

	return imageFromResponse(resp)
}

func imageFromResponse(resp *genai.GenerateContentResponse) (models.Image, error) {
	if resp == nil {
		return models.Image{}, ErrNoImage
	}
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			mimeType := part.InlineData.MIMEType
			if mimeType == "" {
				mimeType = "image/png"
			}
			return models.Image{Data: part.InlineData.Data, MIMEType: mimeType}, nil
		}
	}
	return models.Image{}, ErrNoImage
}
