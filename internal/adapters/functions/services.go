package functions

import (
	"context"
	"errors"

	"github.com/PabloGalante/chicha/internal/adapters/llm"
	"github.com/PabloGalante/chicha/internal/domain"
)

// Function names as deployed.
const (
	FnChat      = "chat-with-gemini"
	FnSearch    = "web-search"
	FnWeather   = "get-weather"
	FnTranslate = "translate"
	FnImage     = "generate-image"
)

// Searcher implements domain.WebSearcher.
type Searcher struct{ c *Client }

func NewSearcher(c *Client) *Searcher { return &Searcher{c: c} }

func (s *Searcher) Search(ctx context.Context, query string) ([]domain.SearchResult, error) {
	var resp struct {
		Results []domain.SearchResult `json:"results"`
	}
	if err := s.c.Invoke(ctx, FnSearch, map[string]string{"query": query}, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// Weather implements domain.WeatherClient.
type Weather struct{ c *Client }

func NewWeather(c *Client) *Weather { return &Weather{c: c} }

func (w *Weather) CurrentWeather(ctx context.Context, location string) (*domain.WeatherReport, error) {
	var resp struct {
		Message     string             `json:"message"`
		Coordinates domain.Coordinates `json:"coordinates"`
	}
	if err := w.c.Invoke(ctx, FnWeather, map[string]string{"location": location}, &resp); err != nil {
		return nil, err
	}
	return &domain.WeatherReport{Message: resp.Message, Coordinates: resp.Coordinates}, nil
}

// Translator implements domain.Translator.
type Translator struct{ c *Client }

func NewTranslator(c *Client) *Translator { return &Translator{c: c} }

func (t *Translator) Translate(ctx context.Context, text, targetLanguage string) (string, error) {
	req := map[string]string{"text": text, "targetLanguage": targetLanguage}
	var resp struct {
		TranslatedText string `json:"translatedText"`
	}
	if err := t.c.Invoke(ctx, FnTranslate, req, &resp); err != nil {
		return "", err
	}
	if resp.TranslatedText == "" {
		return "", errors.New("translate: empty translatedText")
	}
	return resp.TranslatedText, nil
}

// ImageGenerator implements domain.ImageGenerator.
type ImageGenerator struct{ c *Client }

func NewImageGenerator(c *Client) *ImageGenerator { return &ImageGenerator{c: c} }

func (g *ImageGenerator) GenerateImage(ctx context.Context, prompt string) (string, error) {
	var resp struct {
		ImageURL string `json:"imageUrl"`
	}
	if err := g.c.Invoke(ctx, FnImage, map[string]string{"prompt": prompt}, &resp); err != nil {
		return "", err
	}
	return resp.ImageURL, nil
}

// ChatLLM implements domain.LLMClient through the chat function, which adds
// the system context and fetches images on its side.
type ChatLLM struct{ c *Client }

func NewChatLLM(c *Client) *ChatLLM { return &ChatLLM{c: c} }

type chatRequest struct {
	Prompt    string   `json:"prompt"`
	ImageURLs []string `json:"imageUrls,omitempty"`
}

type chatResponse struct {
	Response string          `json:"response"`
	Sources  []domain.Source `json:"sources"`
}

func (l *ChatLLM) GenerateReply(ctx context.Context, req domain.ChatRequest) (*domain.ChatReply, error) {
	var resp chatResponse
	in := chatRequest{
		Prompt:    llm.BuildPrompt(req).User,
		ImageURLs: req.ImageURLs,
	}
	if err := l.c.Invoke(ctx, FnChat, in, &resp); err != nil {
		return nil, err
	}

	sources := resp.Sources
	if len(sources) == 0 {
		sources = llm.ExtractSources(resp.Response)
	}
	return &domain.ChatReply{Text: resp.Response, Sources: sources}, nil
}
