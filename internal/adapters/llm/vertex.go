package llm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/PabloGalante/chicha/internal/domain"
	"github.com/PabloGalante/chicha/internal/observability"
)

const maxImageBytes = 10 << 20

// GeminiConfig selects the Gemini backend. An API key selects the Gemini
// Developer API; otherwise Project and Location select Vertex AI.
type GeminiConfig struct {
	APIKey   string
	Project  string
	Location string
	Model    string

	// HTTPClient fetches attached images. Defaults to http.DefaultClient.
	HTTPClient *http.Client
}

type GeminiClient struct {
	client    *genai.Client
	modelName string
	http      *http.Client
}

// NewGeminiClient creates an LLMClient based on Gemini.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	cc := &genai.ClientConfig{}
	switch {
	case cfg.APIKey != "":
		cc.APIKey = cfg.APIKey
		cc.Backend = genai.BackendGeminiAPI
	case cfg.Project != "" && cfg.Location != "":
		cc.Project = cfg.Project
		cc.Location = cfg.Location
		cc.Backend = genai.BackendVertexAI
	default:
		return nil, fmt.Errorf("gemini: either an API key or a GCP project and location must be set")
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}

	return &GeminiClient{
		client:    client,
		modelName: modelName,
		http:      hc,
	}, nil
}

// GenerateReply implements domain.LLMClient using Gemini.
func (g *GeminiClient) GenerateReply(ctx context.Context, req domain.ChatRequest) (*domain.ChatReply, error) {
	log := observability.LoggerFromContext(ctx)

	// History (user / bot) as conversation
	var contents []*genai.Content
	for _, m := range req.History {
		if m.Processing || m.Text == "" {
			continue
		}
		var role genai.Role
		switch m.Author {
		case domain.RoleBot:
			role = genai.RoleModel
		default:
			role = genai.RoleUser
		}
		contents = append(contents, genai.NewContentFromText(m.Text, role))
	}

	// Current turn: text plus any images that could be fetched
	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	for _, u := range req.ImageURLs {
		data, mimeType, err := g.fetchImage(ctx, u)
		if err != nil {
			log.Warn("skipping image", "url", u, "error", err)
			continue
		}
		parts = append(parts, genai.NewPartFromBytes(data, mimeType))
	}
	contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))

	temp := float32(0.7)
	topP := float32(0.9)

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(SystemContext, genai.RoleUser),
		Temperature:       &temp,
		TopP:              &topP,
		MaxOutputTokens:   int32(8192),
	}

	res, err := g.client.Models.GenerateContent(ctx, g.modelName, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}

	text := res.Text()
	if text == "" {
		return nil, fmt.Errorf("gemini returned empty text")
	}

	return &domain.ChatReply{
		Text:    text,
		Sources: ExtractSources(text),
	}, nil
}

func (g *GeminiClient) fetchImage(ctx context.Context, url string) ([]byte, string, error) {
	return FetchImage(ctx, g.http, url)
}

// FetchImage downloads an image for an inline model part.
func FetchImage(ctx context.Context, hc *http.Client, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch image: status %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read image: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, "", fmt.Errorf("image larger than %d bytes", maxImageBytes)
	}

	mimeType := resp.Header.Get("Content-Type")
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}
	return data, mimeType, nil
}
