package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"github.com/carelink-health/wellness-import/pkg/blobstore"
	"github.com/carelink-health/wellness-import/pkg/common/auth"
	"github.com/carelink-health/wellness-import/pkg/common/config"
	"github.com/carelink-health/wellness-import/pkg/common/httpclient"
	"github.com/carelink-health/wellness-import/pkg/common/logger"
	"github.com/carelink-health/wellness-import/pkg/fhir"
	"github.com/carelink-health/wellness-import/pkg/identity"
	"github.com/carelink-health/wellness-import/pkg/wellness"
)

func main() {
	logger.Init("import-service")

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Log.WithError(err).Warn("failed to load .env file")
	}

	cfg := config.Load()

	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Environment,
		})
		if err != nil {
			logger.Log.WithError(err).Fatal("failed to initialize sentry")
		}
		defer sentry.Flush(2 * time.Second)
	}

	var tokens auth.TokenProvider
	if cfg.AuthTokenURL != "" {
		provider, err := auth.NewM2MTokenProvider(cfg.AuthTokenURL, cfg.AuthClientID, cfg.AuthClientSecret, cfg.AuthAudience)
		if err != nil {
			logger.Log.WithError(err).Fatal("failed to configure token provider")
		}
		tokens = provider
	} else {
		tokens = auth.StaticTokenProvider(os.Getenv("AUTH_STATIC_TOKEN"))
	}

	hc := httpclient.New(cfg.GatewayRequestTimeout)

	store := fhir.NewClient(cfg.FHIRAPIURL, cfg.ProjectID, hc, tokens)
	directory := identity.NewClient(cfg.ProjectAPIURL, cfg.ProjectID, hc, tokens)
	objects := blobstore.NewClient(cfg.ProjectAPIURL, cfg.ProjectID, hc, tokens)

	defaults := wellness.BuiltinDocumentDefaults()
	if cfg.DocDefaultsPath != "" {
		loaded, err := wellness.LoadDocumentDefaults(cfg.DocDefaultsPath)
		if err != nil {
			logger.Log.WithError(err).Fatal("failed to load document defaults")
		}
		defaults = loaded
	}

	svc := wellness.NewService(store, directory, objects, cfg.ProjectID, cfg.AppClientID, defaults)
	handler := wellness.NewHTTPHandler(svc, cfg.MaxRequestBody, cfg.Environment)

	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	handler.Register(api)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("Wellness Import Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Wellness Import Service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}

	logger.Log.Info("Wellness Import Service stopped")
}
