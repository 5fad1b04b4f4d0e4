package translation

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/PabloGalante/chicha/internal/domain"
)

// Language is a translation target offered to the user.
type Language struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Native string `json:"native"`
}

var supported = []language.Tag{
	language.Hindi,
	language.Marathi,
	language.MustParse("sa"),
}

// Supported lists the translation targets in display order.
func Supported() []Language {
	out := make([]Language, 0, len(supported))
	for _, t := range supported {
		out = append(out, describe(t))
	}
	return out
}

// Lookup resolves a target code such as "hi" or "mr-IN". Anything outside
// the supported set is a validation error.
func Lookup(code string) (Language, error) {
	tag, err := language.Parse(strings.TrimSpace(code))
	if err != nil {
		return Language{}, fmt.Errorf("%w: invalid language code %q", domain.ErrValidation, code)
	}
	base, _ := tag.Base()

	for _, t := range supported {
		if b, _ := t.Base(); b == base {
			return describe(t), nil
		}
	}
	return Language{}, fmt.Errorf("%w: unsupported target language %q", domain.ErrValidation, code)
}

func describe(t language.Tag) Language {
	base, _ := t.Base()
	return Language{
		Code:   base.String(),
		Name:   display.English.Languages().Name(t),
		Native: display.Self.Name(t),
	}
}
