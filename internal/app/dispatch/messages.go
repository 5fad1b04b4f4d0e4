package dispatch

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PabloGalante/chicha/internal/domain"
)

const (
	mapsDirectionsURL = "https://www.google.com/maps/dir/?api=1"

	// NavigationTemplate is what the "navigate" helper pre-fills the input with.
	NavigationTemplate = "Please enter your starting location and destination in this format: 'From: [location] To: [destination]'"
	// WeatherTemplate is what the "weather" helper pre-fills the input with.
	WeatherTemplate = "What's the weather in [location]?"

	weatherClarification = "I couldn't determine the location. Please specify a location, for example: 'What's the weather in London?'"
	thinkingPlaceholder  = "Thinking..."
	noSearchResults      = "No results found for your search."
)

// DirectionsURL builds the map directions link for a route.
func DirectionsURL(from, to string) string {
	return mapsDirectionsURL +
		"&origin=" + encodeComponent(from) +
		"&destination=" + encodeComponent(to)
}

// encodeComponent percent-encodes s for a query value, spaces as %20.
func encodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func routeMessage(n Navigation) string {
	return fmt.Sprintf("🗺️ Here's your route: [Open in Google Maps](%s)", DirectionsURL(n.From, n.To))
}

func checkingWeather(location string) string {
	return fmt.Sprintf("🔍 Checking weather for %s...", location)
}

func searchingWeb(query string) string {
	return "🔍 Searching the web for: " + query
}

// formatSearchResults renders results as title, url and snippet lines,
// one block per result.
func formatSearchResults(results []domain.SearchResult) string {
	if len(results) == 0 {
		return noSearchResults
	}
	blocks := make([]string, 0, len(results))
	for _, r := range results {
		blocks = append(blocks, r.Title+"\n"+r.URL+"\n"+r.Snippet)
	}
	return strings.Join(blocks, "\n\n")
}

func generatedImage(prompt, imageURL string) string {
	return fmt.Sprintf("🎨 Generated image for \"%s\": ![Generated Image](%s)", prompt, imageURL)
}
