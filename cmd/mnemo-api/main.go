package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MnemoResearchLab/mnemo/backend/internal/catalog"
	"github.com/MnemoResearchLab/mnemo/backend/internal/config"
	"github.com/MnemoResearchLab/mnemo/backend/internal/database"
	"github.com/MnemoResearchLab/mnemo/backend/internal/logging"
	"github.com/MnemoResearchLab/mnemo/backend/internal/remote"
	"github.com/MnemoResearchLab/mnemo/backend/internal/scheduler"
	"github.com/MnemoResearchLab/mnemo/backend/internal/server"
	"github.com/MnemoResearchLab/mnemo/backend/internal/stats"
	"github.com/MnemoResearchLab/mnemo/backend/internal/storage"
	"github.com/MnemoResearchLab/mnemo/backend/internal/study"
	"github.com/MnemoResearchLab/mnemo/backend/internal/syncer"
	"github.com/MnemoResearchLab/mnemo/backend/internal/vocab"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mnemo-api",
		Short: "Mnemo vocabulary retention service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("remote-base-url", defaults.GetString("remote.base_url"), "Remote store base URL (empty disables sync)")
	cmd.PersistentFlags().String("remote-signing-secret", "", "Remote store signing secret (overrides env)")
	cmd.PersistentFlags().Duration("remote-timeout", defaults.GetDuration("remote.timeout"), "Remote store request timeout")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "remote.base_url", "remote-base-url")
	bindFlag(cmd, "remote.signing_secret", "remote-signing-secret")
	bindFlag(cmd, "remote.timeout", "remote-timeout")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	cardStore, err := storage.NewCardStore(db)
	if err != nil {
		return err
	}
	deckStore, err := storage.NewDeckStore(db)
	if err != nil {
		return err
	}
	logStore, err := storage.NewReviewLogStore(db)
	if err != nil {
		return err
	}
	settingsStore, err := storage.NewSettingsStore(db)
	if err != nil {
		return err
	}

	remoteStore, err := buildRemoteStore(appConfig, logger)
	if err != nil {
		return err
	}

	syncEngine, err := syncer.NewEngine(syncer.EngineConfig{
		Cards:  cardStore,
		Decks:  deckStore,
		Logs:   logStore,
		Remote: remoteStore,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	idProvider := vocab.NewUUIDProvider()

	catalogService, err := catalog.NewService(catalog.ServiceConfig{
		Cards:      cardStore,
		Decks:      deckStore,
		IDProvider: idProvider,
		Mirror:     syncEngine,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	sched, err := scheduler.New(scheduler.DefaultParams())
	if err != nil {
		return err
	}

	selector, err := study.NewSelector(study.SelectorConfig{
		Cards:    cardStore,
		Logs:     logStore,
		Settings: settingsStore,
	})
	if err != nil {
		return err
	}

	reviewService, err := study.NewReviewService(study.ReviewServiceConfig{
		Cards:      cardStore,
		Logs:       logStore,
		Scheduler:  sched,
		IDProvider: idProvider,
		Pusher:     syncEngine,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	statsEngine, err := stats.NewEngine(stats.EngineConfig{
		Cards:    cardStore,
		Logs:     logStore,
		Settings: settingsStore,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Catalog:  catalogService,
		Selector: selector,
		Reviews:  reviewService,
		Stats:    statsEngine,
		Sync:     syncEngine,
		Settings: settingsStore,
		Events:   server.NewEventDispatcher(),
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.Bool("sync_enabled", appConfig.SyncEnabled()))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		syncEngine.Flush()
		return err
	case err := <-errCh:
		return err
	}
}

func buildRemoteStore(appConfig config.AppConfig, logger *zap.Logger) (syncer.RemoteStore, error) {
	if !appConfig.SyncEnabled() {
		logger.Info("remote store not configured, operating locally")
		return syncer.NewDisabledRemote(), nil
	}

	signer, err := remote.NewTokenSigner(remote.TokenSignerConfig{
		SigningSecret: []byte(appConfig.RemoteSigningSecret),
	})
	if err != nil {
		return nil, err
	}

	return remote.NewClient(remote.ClientConfig{
		BaseURL:    appConfig.RemoteBaseURL,
		HTTPClient: &http.Client{Timeout: appConfig.RemoteTimeout},
		Signer:     signer,
		Logger:     logger,
	})
}
