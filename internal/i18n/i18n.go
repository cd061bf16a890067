// Package i18n renders user-facing toast texts from the embedded message catalogs.
package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"path"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var locales embed.FS

type Config struct {
	Language string `envconfig:"CAROUSING_LANGUAGE" default:"en"`
}

// New loads every embedded catalog and localizes into lang, falling back to English.
func New(lang string) (*Localizer, error) {
	tag, err := language.Parse(lang)
	if err != nil {
		return nil, fmt.Errorf("parse language %q: %w", lang, err)
	}

	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	files, err := locales.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("read locales: %w", err)
	}
	for _, f := range files {
		name := path.Join("locales", f.Name())
		buf, err := locales.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		if _, err := bundle.ParseMessageFileBytes(buf, name); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
	}

	return &Localizer{l: i18n.NewLocalizer(bundle, tag.String(), language.English.String())}, nil
}

func MustNew(lang string) *Localizer {
	l, err := New(lang)
	if err != nil {
		panic(err)
	}
	return l
}

type Localizer struct {
	l *i18n.Localizer
}

// Localize returns the message id itself when the catalog has no such message.
func (l *Localizer) Localize(messageID string, data map[string]interface{}) string {
	s, err := l.l.Localize(&i18n.LocalizeConfig{MessageID: messageID, TemplateData: data})
	if err != nil {
		return messageID
	}
	return s
}
