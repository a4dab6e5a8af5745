package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"live-caption-service/internal/config"
	"live-caption-service/internal/service/translate"
)

func testConfig(t *testing.T) *config.Config {
	t.Setenv("RECOGNIZER_PROVIDER", "mock")
	t.Setenv("LOG_LEVEL", "error")
	return config.Load()
}

func TestControllerConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Health.ZombieAfter = 10
	cfg.Recognizer.Language = "fr-FR"

	ccfg := ControllerConfig(cfg)
	if ccfg.Thresholds.ZombieAfter != 10 || ccfg.Thresholds.RecoveryAt != 80 {
		t.Errorf("unexpected thresholds %+v", ccfg.Thresholds)
	}
	if ccfg.Timing.MaxDelay != 2*time.Second {
		t.Errorf("expected max delay 2s, got %v", ccfg.Timing.MaxDelay)
	}
	if ccfg.Settings.Language != "fr-FR" || ccfg.Settings.MaxAlternatives != 3 {
		t.Errorf("unexpected settings %+v", ccfg.Settings)
	}
	if ccfg.Provider != "mock" {
		t.Errorf("expected provider mock, got %s", ccfg.Provider)
	}
}

func TestTranslateConfig(t *testing.T) {
	cfg := testConfig(t)
	if TranslateConfig(cfg).Enabled() {
		t.Error("expected translation disabled without target and key")
	}

	cfg.Translation.Target = "de"
	cfg.Translation.APIKey = "key"
	tcfg := TranslateConfig(cfg)
	if !tcfg.Enabled() || tcfg.Provider != translate.ProviderDeepL {
		t.Errorf("unexpected translate config %+v", tcfg)
	}
}

func TestNew_Providers(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		wantErr  bool
	}{
		{"mock", "mock", false},
		{"unknown", "whisper", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Recognizer.Provider = tt.provider

			a, err := New(context.Background(), cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			if err == nil && a.Controller == nil {
				t.Error("expected controller to be created")
			}
		})
	}
}

func TestNew_InvalidThresholds(t *testing.T) {
	cfg := testConfig(t)
	cfg.Health.PanicAfter = cfg.Health.ZombieAfter

	if _, err := New(context.Background(), cfg); err == nil {
		t.Error("expected error for unordered thresholds")
	}
}

func TestNew_InvalidSettingsFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Recognizer.SettingsFile = filepath.Join(t.TempDir(), "settings.toml")
	if err := os.WriteFile(cfg.Recognizer.SettingsFile, []byte("[recognizer]\nmax_alternatives = 0\n"), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := New(context.Background(), cfg); err == nil {
		t.Error("expected error for invalid settings file")
	}
}

func TestHandler_PersistsSettings(t *testing.T) {
	cfg := testConfig(t)
	cfg.Recognizer.SettingsFile = filepath.Join(t.TempDir(), "settings.toml")

	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/v1/settings", strings.NewReader(`{"language":"es-ES"}`))
	a.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	if got := a.Controller.Settings().Language; got != "es-ES" {
		t.Errorf("expected controller language es-ES, got %s", got)
	}
	saved, err := config.LoadSettings(cfg.Recognizer.SettingsFile, ControllerConfig(cfg).Settings)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved.Language != "es-ES" {
		t.Errorf("expected saved language es-ES, got %s", saved.Language)
	}
	if a.settings.Reload() {
		t.Error("expected the saved file not to be reported back as a change")
	}
}
