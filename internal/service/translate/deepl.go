package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// DefaultDeepLEndpoint is the DeepL v2 translate endpoint.
const DefaultDeepLEndpoint = "https://api.deepl.com/v2/translate"

// DeepL translates through the DeepL HTTP API.
type DeepL struct {
	cfg    Config
	client *http.Client
}

type deeplResponse struct {
	Translations []struct {
		DetectedSourceLanguage string `json:"detected_source_language"`
		Text                   string `json:"text"`
	} `json:"translations"`
}

// NewDeepL creates a DeepL translator.
func NewDeepL(cfg Config) *DeepL {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultDeepLEndpoint
	}
	return &DeepL{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns "deepl".
func (d *DeepL) Name() string { return ProviderDeepL }

// Translate posts text as a form and returns every translation DeepL sends
// back.
func (d *DeepL) Translate(ctx context.Context, text, sourceLang string) ([]LanguageString, error) {
	form := url.Values{
		"text":        {text},
		"target_lang": {strings.ToUpper(d.cfg.Target)},
		"auth_key":    {d.cfg.APIKey},
	}
	// Without source_lang DeepL detects the language itself.
	if src := baseLanguage(sourceLang); src != "" {
		form.Set("source_lang", src)
	}
	if d.cfg.Formality != "" {
		form.Set("formality", d.cfg.Formality)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("deepl request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deepl request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("deepl: HTTP error, status = %d", resp.StatusCode)
	}

	var body deeplResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("deepl response: %w", err)
	}

	out := make([]LanguageString, 0, len(body.Translations))
	for _, t := range body.Translations {
		out = append(out, LanguageString{
			Language: strings.ToLower(d.cfg.Target),
			Detected: t.DetectedSourceLanguage,
			Text:     t.Text,
		})
	}
	return out, nil
}
