package domain

import "context"

// ChatRequest is one conversational turn sent to the LLM.
type ChatRequest struct {
	Prompt    string
	ImageURLs []string
	History   []*Message // for context, oldest first
}

// ChatReply is what the LLM answered.
type ChatReply struct {
	Text    string
	Sources []Source
}

// LLMClient defines how the core application interacts with an LLM service.
type LLMClient interface {
	GenerateReply(ctx context.Context, req ChatRequest) (*ChatReply, error)
}

type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// WebSearcher runs a web search.
type WebSearcher interface {
	Search(ctx context.Context, query string) ([]SearchResult, error)
}

// WeatherReport is a preformatted weather message plus where it applies.
type WeatherReport struct {
	Message     string
	Coordinates Coordinates
}

type WeatherClient interface {
	CurrentWeather(ctx context.Context, location string) (*WeatherReport, error)
}

// Translator translates text into the language identified by a short code
// ("hi", "mr", "sa").
type Translator interface {
	Translate(ctx context.Context, text, targetLanguage string) (string, error)
}

// ImageGenerator turns a prompt into a publicly reachable image URL.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

// ObjectStorage stores a blob under path and returns its public URL.
type ObjectStorage interface {
	Upload(ctx context.Context, path, contentType string, data []byte) (string, error)
}

// SessionStore defines session's persistence
type SessionStore interface {
	CreateSession(session *Session) error
	UpdateSession(session *Session) error
	GetSession(id SessionID) (*Session, error)
	ListSessionsByUser(userID UserID, limit int) ([]*Session, error)
	DeleteSession(id SessionID) error
}

// MessageStore defines message's persistence
type MessageStore interface {
	AppendMessage(msg *Message) error
	UpdateMessage(msg *Message) error
	DeleteMessage(sessionID SessionID, id MessageID) error
	GetMessage(sessionID SessionID, id MessageID) (*Message, error)
	GetMessagesBySession(sessionID SessionID, limit int) ([]*Message, error)
	DeleteMessagesBySession(sessionID SessionID) error
}
