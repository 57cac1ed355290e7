// Package i18n renders user-facing failure messages in the reader's language.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"

	"github.com/BurntSushi/toml"
	goi18n "github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"

	"github.com/okian/skincheck/internal/domain/flow"
)

//go:embed locales/*.toml
var locales embed.FS

const unknownFailure = "unknown_failure"

// Catalog holds the embedded message catalogs.
type Catalog struct {
	bundle   *goi18n.Bundle
	fallback language.Tag
}

// New loads the embedded catalogs. defaultLang is used when the reader's
// languages match none of them.
func New(defaultLang string) (*Catalog, error) {
	fallback, err := language.Parse(defaultLang)
	if err != nil {
		return nil, fmt.Errorf("default language %q: %w", defaultLang, err)
	}

	bundle := goi18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	files, err := fs.Glob(locales, "locales/*.toml")
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if _, err := bundle.LoadMessageFileFS(locales, f); err != nil {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return &Catalog{bundle: bundle, fallback: fallback}, nil
}

// Languages returns the languages with a catalog.
func (c *Catalog) Languages() []string {
	tags := c.bundle.LanguageTags()
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = t.String()
	}
	return out
}

// FailureMessage renders kind for a reader preferring accept, which holds
// language tags or raw Accept-Language headers.
func (c *Catalog) FailureMessage(kind flow.FailureKind, accept ...string) string {
	langs := make([]string, 0, len(accept)+1)
	for _, a := range accept {
		if a != "" {
			langs = append(langs, a)
		}
	}
	langs = append(langs, c.fallback.String())
	loc := goi18n.NewLocalizer(c.bundle, langs...)

	msg, err := loc.Localize(&goi18n.LocalizeConfig{MessageID: string(kind)})
	if err == nil {
		return msg
	}
	msg, err = loc.Localize(&goi18n.LocalizeConfig{MessageID: unknownFailure})
	if err == nil {
		return msg
	}
	return string(kind)
}

// Renderer binds accept for use where a plain kind-to-text function is needed.
func (c *Catalog) Renderer(accept ...string) func(flow.FailureKind) string {
	return func(kind flow.FailureKind) string {
		return c.FailureMessage(kind, accept...)
	}
}
