package llm

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PabloGalante/chicha/internal/domain"
)

var urlPattern = regexp.MustCompile(`https?://[^\s]+`)

const faviconURL = "https://www.google.com/s2/favicons?domain="

// ExtractSources lists the links mentioned in a reply, in order of first
// appearance. Each source is titled by its host name.
func ExtractSources(text string) []domain.Source {
	matches := urlPattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(matches))
	var out []domain.Source
	for _, raw := range matches {
		raw = strings.TrimRight(raw, `.,;:!?)]}>"'*`)
		if seen[raw] {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Hostname() == "" {
			continue
		}
		seen[raw] = true

		host := u.Hostname()
		out = append(out, domain.Source{
			Title:  host,
			URL:    raw,
			Domain: host,
			Icon:   faviconURL + host,
		})
	}
	return out
}
