package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"terra-eye/bot"
	"terra-eye/internal/handlers"
	"terra-eye/internal/notify"
	"terra-eye/internal/pages"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dashboard server (default)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	app := initApplication(cfg)

	visits := pages.NewRegistry(app.realtime, app.notifier, app.modelServer, app.metrics, pages.Options{
		TTL:            cfg.VisitTTL,
		MaxUploadBytes: cfg.UploadMaxBytes,
	})

	srv, err := handlers.New(handlers.Deps{
		Cameras:        app.cameras,
		Employees:      app.employees,
		Dashboard:      app.dashboard,
		Models:         app.modelCtl,
		Catalog:        app.modelRepo,
		Auth:           app.auth,
		ModelHost:      app.modelServer,
		Visits:         visits,
		Sessions:       handlers.NewSessionStore(cfg.SessionSecret, cfg.SecureCookies),
		Metrics:        app.metrics,
		VideoFeedURL:   app.modelServer.VideoFeedURL,
		CheckInGesture: cfg.CheckInGesture,
		MaxUploadBytes: cfg.UploadMaxBytes,
	})
	if err != nil {
		return err
	}

	// Background workers stop with ctx
	workers, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	done := startForwarder(workers, app)

	server := &http.Server{
		Addr:        cfg.ListenAddr,
		Handler:     srv.Router(),
		ReadTimeout: 10 * time.Second,
		// event streams stay open, so no write timeout
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	serveErr := make(chan error, 1)
	go func() {
		log.Printf("🚀 Server starting on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for shutdown signal
	select {
	case <-ctx.Done():
		log.Println("Shutdown signal received, initiating graceful shutdown...")
	case err := <-serveErr:
		if err != nil {
			stopWorkers()
			visits.Close()
			<-done
			return err
		}
	}

	// Event streams end when their visits close
	visits.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	stopWorkers()
	<-done
	log.Println("Server stopped gracefully")
	return nil
}

// startForwarder runs the alert forwarder when any alert sink is configured.
// The returned channel closes once the forwarder has stopped and its sinks are closed.
func startForwarder(ctx context.Context, app *application) <-chan struct{} {
	done := make(chan struct{})
	sinks, closers := alertSinks(ctx, app)
	if len(sinks) == 0 {
		log.Info("no alert sinks configured, forwarder disabled")
		close(done)
		return done
	}

	fwd := notify.NewForwarder(app.realtime, app.notifier, app.cameras, sinks, app.metrics, notify.Options{})
	go func() {
		defer close(done)
		defer func() {
			for _, c := range closers {
				c()
			}
		}()
		_ = fwd.Run(ctx)
	}()
	return done
}

// alertSinks builds the configured sinks. A sink that fails to start is
// logged and skipped.
func alertSinks(ctx context.Context, app *application) ([]notify.Sink, []func()) {
	var (
		sinks   []notify.Sink
		closers []func()
	)

	if cfg.TelegramBotToken != "" {
		b, err := bot.New(bot.Options{
			Token:            cfg.TelegramBotToken,
			AuthorizedChatID: cfg.AuthorizedChatID,
			Cameras:          app.cameras,
			Roster:           app.employees,
			Stats:            app.dashboard,
		})
		if err != nil {
			log.Printf("Warning: Failed to init Telegram Bot: %v", err)
		} else {
			go b.Run(ctx)
			sinks = append(sinks, b)
			log.Println("Telegram Bot Initialized")
		}
	}

	if cfg.MQTTBroker != "" {
		m := notify.NewMQTTSink(cfg.MQTTBroker, cfg.MQTTClientID, cfg.MQTTUsername, cfg.MQTTPassword, cfg.MQTTTopic)
		connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err := m.Connect(connectCtx)
		cancel()
		if err != nil {
			log.Printf("Warning: MQTT sink disabled: %v", err)
		} else {
			sinks = append(sinks, m)
			closers = append(closers, m.Close)
		}
	}

	if len(cfg.ShoutrrrURLs) > 0 {
		s, err := notify.NewShoutrrrSink(cfg.ShoutrrrURLs, "Terra Eye alert", 10*time.Second)
		if err != nil {
			log.Printf("Warning: shoutrrr sink disabled: %v", err)
		} else {
			sinks = append(sinks, s)
		}
	}

	return sinks, closers
}
