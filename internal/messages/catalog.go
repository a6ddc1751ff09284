// Package messages renders structured validation failures into localized
// human-readable text.
package messages

import (
	"embed"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/BurntSushi/toml"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"

	"github.com/example/autoscaler-scheduler/internal/schedule"
)

//go:embed active.*.toml
var translationFS embed.FS

// Keys of messages that do not describe a schedule violation.
const (
	// KeyInvalidJSON is rendered when a request body cannot be decoded.
	KeyInvalidJSON = "data.invalid.json"
	// KeyPolicyNotFound takes the application id.
	KeyPolicyNotFound = "policy.not.found"
	KeyInternalError  = "server.internal.error"
)

const localizerCacheSize = 16

var supported = []language.Tag{language.English, language.Japanese}

// Lookup renders a message key with positional arguments.
type Lookup interface {
	Lookup(key string, args ...any) string
}

// Catalog holds the embedded translations and a cache of localizers per
// language.
type Catalog struct {
	bundle   *i18n.Bundle
	matcher  language.Matcher
	fallback language.Tag
	cache    *lru.Cache[string, *Localizer]
	logger   *slog.Logger
}

// New loads the embedded translations. defaultLang is used when a request
// names no supported language.
func New(defaultLang string, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)
	for _, tag := range supported {
		filename := fmt.Sprintf("active.%s.toml", tag)
		if _, err := bundle.LoadMessageFileFS(translationFS, filename); err != nil {
			return nil, fmt.Errorf("load %s: %w", filename, err)
		}
	}

	cache, err := lru.New[string, *Localizer](localizerCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create localizer cache: %w", err)
	}

	c := &Catalog{
		bundle:  bundle,
		matcher: language.NewMatcher(supported),
		cache:   cache,
		logger:  logger,
	}
	c.fallback = c.match(defaultLang, language.English)
	return c, nil
}

// For returns the localizer that best matches an Accept-Language header or
// language code. Unsupported or empty input yields the default language.
func (c *Catalog) For(acceptLanguage string) *Localizer {
	tag := c.match(acceptLanguage, c.fallback)
	key := tag.String()
	if l, ok := c.cache.Get(key); ok {
		return l
	}
	l := &Localizer{
		localizer: i18n.NewLocalizer(c.bundle, key),
		language:  key,
		logger:    c.logger,
	}
	c.cache.Add(key, l)
	return l
}

// Lookup renders key in the default language.
func (c *Catalog) Lookup(key string, args ...any) string {
	return c.For("").Lookup(key, args...)
}

func (c *Catalog) match(accept string, fallback language.Tag) language.Tag {
	if accept == "" {
		return fallback
	}
	tags, _, err := language.ParseAcceptLanguage(accept)
	if err != nil || len(tags) == 0 {
		return fallback
	}
	_, index, confidence := c.matcher.Match(tags...)
	if confidence == language.No {
		return fallback
	}
	return supported[index]
}

// Localizer renders messages in one language.
type Localizer struct {
	localizer *i18n.Localizer
	language  string
	logger    *slog.Logger
}

// Language returns the BCP 47 tag of the localizer.
func (l *Localizer) Language() string { return l.language }

// Lookup renders key with args bound to {{.Arg0}}, {{.Arg1}}, and so on.
// Unknown keys render as "[key]".
func (l *Localizer) Lookup(key string, args ...any) string {
	data := make(map[string]any, len(args))
	for i, arg := range args {
		data["Arg"+strconv.Itoa(i)] = arg
	}
	msg, err := l.localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    key,
		TemplateData: data,
	})
	// A message only present in the default language is returned together
	// with a not-found error.
	if msg == "" {
		l.logger.Warn("missing translation", "key", key, "language", l.language, "error", err)
		return fmt.Sprintf("[%s]", key)
	}
	if err != nil {
		l.logger.Debug("translation fell back to default language", "key", key, "language", l.language)
	}
	return msg
}

// Render renders every violation in order.
func Render(l Lookup, violations []schedule.Violation) []string {
	out := make([]string, 0, len(violations))
	for _, v := range violations {
		out = append(out, l.Lookup(v.Key, v.Args...))
	}
	return out
}
