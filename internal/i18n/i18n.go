// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package i18n

import (
	"context"
	"embed"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed translations/*.toml
var translationFS embed.FS

var (
	bundle   *i18n.Bundle
	initOnce sync.Once
	initErr  error
)

type localeContextKey struct{}
type localizerContextKey struct{}

// Supported lists the available languages, the default first.
var Supported = []language.Tag{
	language.English,
	language.German,
}

var matcher = language.NewMatcher(Supported)

// Init loads the embedded translations. It is safe to call more than once.
func Init() error {
	initOnce.Do(func() {
		b := i18n.NewBundle(language.English)
		b.RegisterUnmarshalFunc("toml", toml.Unmarshal)

		for _, file := range []string{
			"translations/active.en.toml",
			"translations/active.de.toml",
		} {
			if _, err := b.LoadMessageFileFS(translationFS, file); err != nil {
				initErr = err
				return
			}
		}
		bundle = b
	})
	return initErr
}

// WithLocale adds the locale to the context.
func WithLocale(ctx context.Context, lang language.Tag) context.Context {
	locale := lang.String()
	ctx = context.WithValue(ctx, localeContextKey{}, locale)
	localizer := i18n.NewLocalizer(getBundle(), locale)
	return context.WithValue(ctx, localizerContextKey{}, localizer)
}

// GetLocale returns the current locale from context.
func GetLocale(ctx context.Context) string {
	if locale, ok := ctx.Value(localeContextKey{}).(string); ok {
		return locale
	}
	return "en"
}

// T translates a message by ID.
func T(ctx context.Context, messageID string) string {
	return TData(ctx, messageID, nil)
}

// TData translates a message with template data.
// Unknown ids come back unchanged.
func TData(ctx context.Context, messageID string, data map[string]any) string {
	localizer := getLocalizer(ctx)
	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
	if err != nil {
		return messageID
	}
	return msg
}

// TPlural translates a message with plural support.
func TPlural(ctx context.Context, messageID string, count int) string {
	localizer := getLocalizer(ctx)
	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    messageID,
		PluralCount:  count,
		TemplateData: map[string]any{"Count": count},
	})
	if err != nil {
		return messageID
	}
	return msg
}

// MatchLanguage matches the best supported language from an Accept-Language
// header. The result is one of Supported, without region extensions.
func MatchLanguage(acceptLanguage string) language.Tag {
	_, idx := language.MatchStrings(matcher, acceptLanguage)
	return Supported[idx]
}

func getBundle() *i18n.Bundle {
	_ = Init()
	if bundle == nil {
		// Embedded files failed to parse; keep serving message ids.
		return i18n.NewBundle(language.English)
	}
	return bundle
}

func getLocalizer(ctx context.Context) *i18n.Localizer {
	if localizer, ok := ctx.Value(localizerContextKey{}).(*i18n.Localizer); ok {
		return localizer
	}
	return i18n.NewLocalizer(getBundle(), "en")
}
