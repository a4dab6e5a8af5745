// Package translate turns settled caption lines into translated branches.
// Translations run off the processing path; finished branches wait in a
// Queue until the controller drains them into history.
package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
)

// Providers selectable in Config.Provider.
const (
	ProviderDeepL  = "deepl"
	ProviderOpenAI = "openai"
)

// ErrDisabled is returned by the Disabled translator.
var ErrDisabled = errors.New("translation disabled")

// LanguageString is text in one language.
type LanguageString struct {
	Language string // language of Text
	Detected string // source language reported by the provider, if any
	Text     string
}

// Translator translates text spoken in sourceLang into the configured target.
type Translator interface {
	Translate(ctx context.Context, text, sourceLang string) ([]LanguageString, error)
	Name() string
}

// Config holds translation provider configuration.
type Config struct {
	Provider  string
	Endpoint  string
	Target    string
	APIKey    string
	Formality string
	Model     string
	Timeout   time.Duration
}

// DefaultConfig returns the DeepL defaults with translation switched off.
func DefaultConfig() Config {
	return Config{
		Provider:  ProviderDeepL,
		Endpoint:  DefaultDeepLEndpoint,
		Formality: "default",
		Timeout:   10 * time.Second,
	}
}

// Enabled reports whether both a target language and an API key are set.
func (c Config) Enabled() bool {
	return c.Target != "" && c.APIKey != ""
}

// New returns the translator selected by cfg, or Disabled when cfg is not
// enabled.
func New(cfg Config) (Translator, error) {
	if !cfg.Enabled() {
		return Disabled{}, nil
	}
	switch strings.ToLower(cfg.Provider) {
	case ProviderDeepL, "":
		return NewDeepL(cfg), nil
	case ProviderOpenAI:
		return NewOpenAI(cfg), nil
	default:
		return nil, fmt.Errorf("unknown translation provider %q", cfg.Provider)
	}
}

// Disabled never translates.
type Disabled struct{}

// Translate always fails with ErrDisabled.
func (Disabled) Translate(context.Context, string, string) ([]LanguageString, error) {
	return nil, ErrDisabled
}

// Name returns "disabled".
func (Disabled) Name() string { return "disabled" }

// IsDisabled reports whether tr is missing or Disabled.
func IsDisabled(tr Translator) bool {
	if tr == nil {
		return true
	}
	_, off := tr.(Disabled)
	return off
}

// baseLanguage reduces a BCP 47 tag to its primary language subtag in upper
// case, the form DeepL expects for source languages. Unparseable tags yield "".
func baseLanguage(tag string) string {
	t, err := language.Parse(tag)
	if err != nil {
		return ""
	}
	base, _ := t.Base()
	return strings.ToUpper(base.String())
}
