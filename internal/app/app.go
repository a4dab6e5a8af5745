// Package app assembles the caption service from configuration and runs its
// servers and background loops.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"live-caption-service/internal/config"
	"live-caption-service/internal/events"
	httpapi "live-caption-service/internal/http"
	"live-caption-service/internal/observability"
	"live-caption-service/internal/observability/logging"
	"live-caption-service/internal/observability/metrics"
	"live-caption-service/internal/service/audio"
	"live-caption-service/internal/service/captioner"
	"live-caption-service/internal/service/health"
	"live-caption-service/internal/service/recognizer"
	"live-caption-service/internal/service/recognizer/google"
	"live-caption-service/internal/service/recognizer/mock"
	"live-caption-service/internal/service/translate"
)

// HealthService is the gRPC health service name that follows the recognizer.
const HealthService = "live.caption.Captioner"

const healthInterval = time.Second

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Config
	Controller  *captioner.Controller

	rec          recognizer.Recognizer
	closeRec     func() error
	publisher    *events.Publisher
	translations *translate.Queue
	source       *audio.Source
	settings     *config.SettingsWatcher

	obs          *observability.Server
	httpServer   *http.Server
	grpcServer   *grpc.Server
	healthServer *grpchealth.Server

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs the application from the provided configuration.
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	logging.Init(logging.Config{
		Level:      cfg.Observability.LogLevel,
		Format:     cfg.Observability.LogFormat,
		TimeFormat: time.RFC3339,
	})

	a := &Application{
		Cfg: cfg,
		Logger: logging.Logger().With().
			Str("service", "live-caption-service").
			Str("component", "application").
			Logger(),
	}

	ccfg := ControllerConfig(cfg)
	if err := ccfg.Thresholds.Validate(); err != nil {
		return nil, err
	}

	if cfg.Recognizer.SettingsFile != "" {
		loaded, err := config.LoadSettings(cfg.Recognizer.SettingsFile, ccfg.Settings)
		if err != nil {
			return nil, fmt.Errorf("load recognizer settings: %w", err)
		}
		ccfg.Settings = loaded
	}

	rec, closeRec, err := newRecognizer(ctx, cfg.Recognizer)
	if err != nil {
		return nil, fmt.Errorf("create recognizer: %w", err)
	}
	a.rec = rec
	a.closeRec = closeRec

	tr, err := translate.New(TranslateConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("create translator: %w", err)
	}
	a.translations = translate.NewQueue(tr, translate.DefaultQueueCapacity, cfg.Translation.Timeout)

	a.publisher = events.New(&events.Config{
		Enabled:      cfg.Kafka.Enabled,
		Brokers:      cfg.Kafka.Brokers,
		TopicLive:    cfg.Kafka.TopicLive,
		TopicHistory: cfg.Kafka.TopicHistory,
		Principal:    cfg.Kafka.Principal,
	})

	a.Controller = captioner.New(rec, a.publisher, a.translations, ccfg)

	if cfg.Recognizer.SettingsFile != "" {
		a.settings, err = config.NewSettingsWatcher(cfg.Recognizer.SettingsFile, ccfg.Settings, func(s recognizer.Settings) {
			if err := a.Controller.UpdateSettings(s); err != nil {
				a.Logger.Warn().Err(err).Msg("Rejected reloaded settings")
			}
		})
		if err != nil {
			return nil, err
		}
	}

	if sink, ok := rec.(audio.Sink); ok && cfg.Recognizer.AudioSource != "" {
		a.source = audio.NewSource(cfg.Recognizer.AudioSource, sink, audio.WithSampleRate(cfg.Recognizer.SampleRateHz))
	}

	a.Logger.Info().
		Str("provider", cfg.Recognizer.Provider).
		Str("translation", tr.Name()).
		Bool("kafka", a.publisher.Enabled()).
		Msg("Live caption service application created")
	return a, nil
}

// ControllerConfig maps service configuration onto the caption controller.
func ControllerConfig(cfg *config.Config) captioner.Config {
	return captioner.Config{
		Provider: cfg.Recognizer.Provider,
		Thresholds: health.Thresholds{
			ZombieAfter: cfg.Health.ZombieAfter,
			PanicAfter:  cfg.Health.PanicAfter,
			RecoveryAt:  cfg.Health.RecoveryAt,
		},
		Timing: health.Timing{
			MinDelay: cfg.Health.MinDelay,
			MaxDelay: cfg.Health.MaxDelay,
			Window:   cfg.Health.Window,
		},
		Settings: recognizer.Settings{
			Language:        cfg.Recognizer.Language,
			Continuous:      cfg.Recognizer.Continuous,
			InterimResults:  cfg.Recognizer.InterimResults,
			MaxAlternatives: cfg.Recognizer.MaxAlternatives,
		},
	}
}

// TranslateConfig maps service configuration onto the translator.
func TranslateConfig(cfg *config.Config) translate.Config {
	return translate.Config{
		Provider:  cfg.Translation.Provider,
		Endpoint:  cfg.Translation.Endpoint,
		Target:    cfg.Translation.Target,
		APIKey:    cfg.Translation.APIKey,
		Formality: cfg.Translation.Formality,
		Model:     cfg.Translation.Model,
		Timeout:   cfg.Translation.Timeout,
	}
}

func newRecognizer(ctx context.Context, cfg config.RecognizerConfig) (recognizer.Recognizer, func() error, error) {
	switch cfg.Provider {
	case "mock":
		r := mock.New(mock.WithScript(mock.Script(mock.DefaultUtterances, cfg.MockPace)))
		return r, func() error { return r.Abort() }, nil
	case "google":
		r, err := google.New(ctx, google.Config{
			LanguageCode:   cfg.Language,
			SampleRateHz:   cfg.SampleRateHz,
			InterimResults: cfg.InterimResults,
			AudioEncoding:  cfg.AudioEncoding,
		})
		if err != nil {
			return nil, nil, err
		}
		return r, r.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown recognizer provider %q", cfg.Provider)
	}
}

// Handler returns the caption HTTP API. Settings updates are written back to
// the settings file when one is configured.
func (a *Application) Handler() http.Handler {
	if a.settings == nil {
		return httpapi.NewRouter(a.Controller)
	}
	return httpapi.NewRouter(persistedSettings{Controller: a.Controller, store: a.settings})
}

// persistedSettings saves accepted settings so they survive restarts. The
// store's own write is not echoed back to the controller.
type persistedSettings struct {
	*captioner.Controller
	store *config.SettingsWatcher
}

func (p persistedSettings) UpdateSettings(s recognizer.Settings) error {
	if err := p.Controller.UpdateSettings(s); err != nil {
		return err
	}
	return p.store.Save(s)
}

// Start launches the servers and the controller loop.
func (a *Application) Start(ctx context.Context) error {
	startLogger := a.Logger.With().
		Str("method", "Start").
		Logger()

	a.StartupTime = time.Now().UTC()
	ctx, a.cancel = context.WithCancel(ctx)

	if a.settings != nil {
		if err := a.settings.Start(ctx); err != nil {
			return fmt.Errorf("watch settings: %w", err)
		}
	}

	lis, err := net.Listen("tcp", ":"+a.Cfg.Service.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	m := metrics.DefaultMetrics
	a.grpcServer = grpc.NewServer(
		grpc.UnaryInterceptor(observability.UnaryServerInterceptor(m)),
		grpc.StreamInterceptor(observability.StreamServerInterceptor(m)),
	)
	a.healthServer = grpchealth.NewServer()
	grpc_health_v1.RegisterHealthServer(a.grpcServer, a.healthServer)
	reflection.Register(a.grpcServer)
	a.healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	a.healthServer.SetServingStatus(HealthService, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	a.obs = observability.NewServer(a.Cfg.Observability.MetricsAddr, a.Controller.Running)
	a.obs.Start()

	a.httpServer = &http.Server{
		Addr:              ":" + a.Cfg.Service.HTTPPort,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	a.goLoop("grpc", func() error {
		if err := a.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	})
	a.goLoop("http", func() error {
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	a.goLoop("controller", func() error {
		if err := a.Controller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	a.goLoop("health", func() error {
		a.watchHealth(ctx)
		return nil
	})
	if a.source != nil {
		a.goLoop("audio", func() error {
			if err := a.source.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Str("grpcPort", a.Cfg.Service.GRPCPort).
		Str("httpPort", a.Cfg.Service.HTTPPort).
		Str("sessionId", a.Controller.SessionID()).
		Msg("Live caption service starting")
	return nil
}

func (a *Application) goLoop(name string, fn func() error) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := fn(); err != nil {
			a.Logger.Error().Err(err).Str("loop", name).Msg("Background loop failed")
		}
	}()
}

// watchHealth mirrors the recognizer state into the gRPC health service.
func (a *Application) watchHealth(ctx context.Context) {
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()

	serving := false
	for {
		if running := a.Controller.Running(); running != serving {
			serving = running
			st := grpc_health_v1.HealthCheckResponse_NOT_SERVING
			if serving {
				st = grpc_health_v1.HealthCheckResponse_SERVING
			}
			a.healthServer.SetServingStatus(HealthService, st)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Shutdown performs a best-effort cleanup before process exit.
func (a *Application) Shutdown(ctx context.Context) {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()

	shutdownLogger.Info().Msg("Live caption service shutting down")

	if a.healthServer != nil {
		a.healthServer.Shutdown()
	}
	if a.cancel != nil {
		a.cancel()
	}
	if a.settings != nil {
		a.settings.Stop()
	}
	if a.httpServer != nil {
		if err := a.httpServer.Shutdown(ctx); err != nil {
			shutdownLogger.Warn().Err(err).Msg("HTTP server shutdown")
		}
	}
	if err := a.Controller.Shutdown(ctx); err != nil {
		shutdownLogger.Warn().Err(err).Msg("Controller shutdown")
	}
	if a.grpcServer != nil {
		a.grpcServer.GracefulStop()
	}
	if a.obs != nil {
		if err := a.obs.Shutdown(ctx); err != nil {
			shutdownLogger.Warn().Err(err).Msg("Observability server shutdown")
		}
	}
	a.wg.Wait()

	if err := a.closeRec(); err != nil {
		shutdownLogger.Warn().Err(err).Msg("Recognizer close")
	}
	if err := a.publisher.Close(); err != nil {
		shutdownLogger.Warn().Err(err).Msg("Publisher close")
	}
}
