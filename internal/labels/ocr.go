package labels

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Prompt asks for a verbatim transcription.
const Prompt = `Extract all visible text exactly as it appears in the image.
Do NOT translate, summarize, or interpret.
Return the text exactly in the original language.`

// NoText is returned by the model wrapper when the response carries no text.
const NoText = "No text detected."

// TextExtractor turns an image into raw text.
type TextExtractor interface {
	ExtractText(ctx context.Context, img []byte, mimeType string) (string, error)
}

// Gemini calls a Gemini model through the Gen AI SDK.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a client for the Gemini API.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("missing API key")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) ExtractText(ctx context.Context, img []byte, mimeType string) (string, error) {
	parts := []*genai.Part{
		genai.NewPartFromText(Prompt),
		genai.NewPartFromBytes(img, mimeType),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return NoText, nil
	}
	return text, nil
}
