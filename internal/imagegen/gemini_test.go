package imagegen

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/genai"
)

func TestImageFromResponse(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []*genai.Part{
				{Text: "here is your portrait"},
				{InlineData: &genai.Blob{Data: []byte{0x89, 'P', 'N', 'G'}, MIMEType: "image/png"}},
			}}},
		},
	}

	image, err := imageFromResponse(resp)
	if err != nil {
		t.Fatalf("extract image: %v", err)
	}
	if string(image.Data) != "\x89PNG" || image.MIMEType != "image/png" {
		t.Fatalf("unexpected image %+v", image)
	}
}

func TestImageFromResponseWithoutImage(t *testing.T) {
	cases := map[string]*genai.GenerateContentResponse{
		"nil":       nil,
		"no parts":  {Candidates: []*genai.Candidate{{Content: &genai.Content{}}}},
		"text only": {Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{{Text: "sorry"}}}}}},
	}

	for name, resp := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := imageFromResponse(resp); !errors.Is(err, ErrNoImage) {
				t.Fatalf("expected ErrNoImage got %v", err)
			}
		})
	}
}

func TestNewGeminiGeneratorRequiresKey(t *testing.T) {
	if _, err := NewGeminiGenerator(context.Background(), " ", "", Options{}); err == nil {
		t.Fatal("expected an error for a missing api key")
	}
}

func TestGeminiGeneratorGenerate(t *testing.T) {
	var gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{
				map[string]any{
					"content": map[string]any{
						"role": "model",
						"parts": []any{
							map[string]any{"inlineData": map[string]any{
								"mimeType": "image/png",
								"data":     base64.StdEncoding.EncodeToString([]byte("image-bytes")),
							}},
						},
					},
				},
			},
		})
	}))
	defer server.Close()

	generator, err := NewGeminiGenerator(context.Background(), "test-key", "", Options{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("new generator: %v", err)
	}

	image, err := generator.Generate(context.Background(), "a red scarf")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if string(image.Data) != "image-bytes" {
		t.Fatalf("unexpected image data %q", image.Data)
	}
	if !strings.Contains(gotBody, "a red scarf") || !strings.Contains(gotBody, "aesthetically pleasing") {
		t.Fatalf("expected templated prompt in request, got %s", gotBody)
	}
}
