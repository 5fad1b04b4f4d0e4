package dispatch

import (
	"regexp"
	"strings"
)

type IntentKind string

const (
	KindNavigation IntentKind = "navigation"
	KindWeather    IntentKind = "weather"
	KindWebSearch  IntentKind = "web_search"
	KindPlainChat  IntentKind = "plain_chat"
)

// Intent is the handling branch chosen for one utterance. Exactly one of
// Navigation, WeatherQuery, WebSearchTrigger or PlainChat.
type Intent interface {
	Kind() IntentKind
}

type Navigation struct {
	From string
	To   string
}

type WeatherQuery struct {
	// Location is empty when the utterance names no place.
	Location string
}

// WebSearchTrigger is only produced by the explicit search action, never by
// classification.
type WebSearchTrigger struct {
	Query string
}

type PlainChat struct {
	Text        string
	Attachments []Attachment
}

func (Navigation) Kind() IntentKind       { return KindNavigation }
func (WeatherQuery) Kind() IntentKind     { return KindWeather }
func (WebSearchTrigger) Kind() IntentKind { return KindWebSearch }
func (PlainChat) Kind() IntentKind        { return KindPlainChat }

var (
	navigationPattern = regexp.MustCompile(`(?i)from:\s*(.+?)\s*to:\s*(.+)`)
	weatherLocation   = regexp.MustCompile(`(?i)(?:weather|temperature|forecast)\s+(?:in|at|for)\s+([^?.,!;:\n]+)`)
	weatherKeywords   = []string{"weather", "temperature", "forecast"}
)

// rule matches a trimmed utterance and extracts its intent.
type rule struct {
	name  string
	match func(text string) (Intent, bool)
}

// rules are evaluated in order; the first match wins.
var rules = []rule{
	{name: "navigation", match: matchNavigation},
	{name: "weather", match: matchWeather},
}

// Classify picks the intent for an utterance. Anything no rule claims is
// plain chat.
func Classify(text string, attachments []Attachment) Intent {
	text = strings.TrimSpace(text)
	for _, r := range rules {
		if in, ok := r.match(text); ok {
			return in
		}
	}
	return PlainChat{Text: text, Attachments: attachments}
}

func matchNavigation(text string) (Intent, bool) {
	m := navigationPattern.FindStringSubmatch(text)
	if m == nil {
		return nil, false
	}
	from := strings.TrimSpace(m[1])
	to := strings.TrimSpace(m[2])
	if from == "" || to == "" {
		return nil, false
	}
	return Navigation{From: from, To: to}, true
}

func matchWeather(text string) (Intent, bool) {
	lower := strings.ToLower(text)

	hit := false
	for _, kw := range weatherKeywords {
		if strings.Contains(lower, kw) {
			hit = true
			break
		}
	}
	if !hit {
		return nil, false
	}

	var location string
	if m := weatherLocation.FindStringSubmatch(text); m != nil {
		location = strings.TrimSpace(m[1])
	}
	return WeatherQuery{Location: location}, true
}
