// Caption viewer: follows the caption topics in Kafka and shows them in a
// browser or on the terminal.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"live-caption-service/internal/models"
	"live-caption-service/internal/observability/logging"
	"live-caption-service/internal/viewer"
)

var (
	brokers      string
	topicLive    string
	topicHistory string
	lookback     time.Duration
	logLevel     string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "caption-viewer",
	Short: "Follow live captions published to Kafka",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg := logging.DefaultConfig()
		cfg.Level = logLevel
		cfg.Format = "console"
		logging.Init(cfg)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&brokers, "brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	pf.StringVar(&topicLive, "topic-live", "caption.live", "Live snapshot topic")
	pf.StringVar(&topicHistory, "topic-history", "caption.history", "Settled lines topic")
	pf.DurationVar(&lookback, "lookback", time.Hour, "How far back to start reading")
	pf.StringVar(&logLevel, "log-level", "info", "Log level")

	rootCmd.AddCommand(serveCmd(), tailCmd())
}

func brokerList() []string {
	return strings.Split(brokers, ",")
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func serveCmd() *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a browser view of the captions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			hub := viewer.NewHub()
			go hub.Run(ctx.Done())

			for _, topic := range []string{topicLive, topicHistory} {
				go func(topic string) {
					cfg := viewer.ConsumerConfig{Brokers: brokerList(), Topic: topic, Lookback: lookback}
					if err := viewer.Consume(ctx, cfg, hub.Publish); err != nil && ctx.Err() == nil {
						log.Error().Err(err).Str("topic", topic).Msg("consumer stopped")
					}
				}(topic)
			}

			srv := &http.Server{Addr: ":" + port, Handler: viewer.Handler(hub), ReadHeaderTimeout: 5 * time.Second}
			go func() {
				<-ctx.Done()
				_ = srv.Close()
			}()

			log.Info().Str("addr", "http://localhost:"+port).Strs("topics", []string{topicLive, topicHistory}).Msg("Caption viewer starting")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&port, "port", "8081", "HTTP server port")
	return cmd
}

func tailCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tail",
		Short: "Print settled caption lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			out := cmd.OutOrStdout()
			cfg := viewer.ConsumerConfig{Brokers: brokerList(), Topic: topicHistory, Lookback: lookback}
			err := viewer.Consume(ctx, cfg, func(ev models.CaptionEvent) {
				for _, line := range ev.Lines {
					fmt.Fprintln(out, viewer.FormatLine(ev.SessionID, line))
				}
			})
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
}
