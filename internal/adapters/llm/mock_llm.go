package llm

import (
	"context"
	"fmt"

	"github.com/PabloGalante/chicha/internal/domain"
)

// MockLLM answers locally without any model. Used in local mode and tests.
type MockLLM struct{}

func NewMockLLM() *MockLLM {
	return &MockLLM{}
}

func (m *MockLLM) GenerateReply(_ context.Context, req domain.ChatRequest) (*domain.ChatReply, error) {
	text := fmt.Sprintf("You said %q.", req.Prompt)
	if n := len(req.ImageURLs); n > 0 {
		text += fmt.Sprintf(" I received %d image(s).", n)
	}
	return &domain.ChatReply{
		Text:    text,
		Sources: ExtractSources(req.Prompt),
	}, nil
}
