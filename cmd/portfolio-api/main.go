package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/portfolio/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/portfolio/backend/internal/chat"
	"github.com/MarcoPoloResearchLab/portfolio/backend/internal/config"
	"github.com/MarcoPoloResearchLab/portfolio/backend/internal/content"
	"github.com/MarcoPoloResearchLab/portfolio/backend/internal/database"
	"github.com/MarcoPoloResearchLab/portfolio/backend/internal/documents"
	"github.com/MarcoPoloResearchLab/portfolio/backend/internal/events"
	"github.com/MarcoPoloResearchLab/portfolio/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/portfolio/backend/internal/media"
	"github.com/MarcoPoloResearchLab/portfolio/backend/internal/portfolio"
	"github.com/MarcoPoloResearchLab/portfolio/backend/internal/server"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	tokenIssuer   = "portfolio-auth"
	tokenAudience = "portfolio-admin"
)

var (
	cfgFile string
	envFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "portfolio-api",
		Short: "Portfolio content backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(hashPasswordCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a dotenv file loaded before the environment is read")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Admin token TTL in minutes")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", defaults.GetString("log.format"), "Log format (json, console)")
	cmd.PersistentFlags().String("media-dir", defaults.GetString("media.local_dir"), "Directory for uploads when no S3 bucket is set")
	cmd.PersistentFlags().String("signing-secret", "", "Admin token signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
	bindFlag(cmd, "media.local_dir", "media-dir")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}

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

func hashPasswordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print a bcrypt hash for auth.owner_password_hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.HashPassword(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(hash))
			return err
		},
	}
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
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

	idProvider := content.NewUUIDProvider()

	tokenManager, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.Auth.SigningSecret),
		Issuer:        tokenIssuer,
		Audience:      tokenAudience,
		TokenTTL:      appConfig.Auth.TokenTTL,
	})
	if err != nil {
		return err
	}
	credentials, err := auth.NewCredentialGate(auth.CredentialGateConfig{
		Username:     appConfig.Auth.OwnerUsername,
		PasswordHash: []byte(appConfig.Auth.OwnerPasswordHash),
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("auth.owner_password_hash: %w", err)
	}

	documentStore, err := documents.NewStore(documents.StoreConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	portfolioService, err := portfolio.NewService(portfolio.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	blobStore, mediaFiles, err := openBlobStore(ctx, appConfig)
	if err != nil {
		return err
	}
	uploader, err := media.NewUploader(media.UploaderConfig{
		Store:      blobStore,
		IDProvider: idProvider,
		Logger:     logger,
		MaxBytes:   appConfig.Media.MaxUploadBytes,
	})
	if err != nil {
		return err
	}

	chatService, err := chat.NewService(chat.ServiceConfig{
		Completer: newCompleter(ctx, appConfig.Chat, logger),
		Persona:   portfolio.NewPersona(portfolioService, appConfig.Chat.AssistantName),
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	publisher := newPublisher(appConfig.RabbitMQURL, logger)
	defer publisher.Close() //nolint:errcheck

	sessions := server.NewSessionRegistry(server.SessionRegistryConfig{
		Gateway:     documentStore,
		IDProvider:  idProvider,
		Clock:       time.Now,
		Logger:      logger,
		IdleTimeout: appConfig.SessionIdleTimeout,
	})

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Credentials:    credentials,
		TokenManager:   tokenManager,
		Documents:      documentStore,
		Portfolio:      portfolioService,
		Chat:           chatService,
		Uploader:       uploader,
		MediaFiles:     mediaFiles,
		Publisher:      publisher,
		Notifications:  server.NewNotificationDispatcher(),
		Sessions:       sessions,
		HealthChecks:   healthChecks(db, blobStore, appConfig.RabbitMQURL),
		AllowedOrigins: appConfig.CORSAllowedOrigins,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), appConfig.ShutdownTimeout)
		defer cancel()
		shutdownErr := httpServer.Shutdown(shutdownCtx)
		sessions.Shutdown()
		logger.Info("server stopped")
		return shutdownErr
	case err := <-errCh:
		return err
	}
}

// openBlobStore returns the upload target and, for local storage, the store
// that GET /media/* serves from.
func openBlobStore(ctx context.Context, appConfig config.AppConfig) (media.BlobStore, media.BlobStore, error) {
	if appConfig.S3.Enabled() {
		store, err := media.NewS3Store(ctx, media.S3Config{
			Bucket:          appConfig.S3.Bucket,
			Region:          appConfig.S3.Region,
			Endpoint:        appConfig.S3.Endpoint,
			AccessKeyID:     appConfig.S3.AccessKeyID,
			SecretAccessKey: appConfig.S3.SecretAccessKey,
			PublicBaseURL:   appConfig.S3.PublicBaseURL,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	}
	store, err := media.NewLocalStore(appConfig.Media.LocalDir, appConfig.Media.PublicBaseURL)
	if err != nil {
		return nil, nil, err
	}
	return store, store, nil
}

func newCompleter(ctx context.Context, chatConfig config.ChatConfig, logger *zap.Logger) chat.Completer {
	if strings.TrimSpace(chatConfig.APIKey) == "" {
		logger.Warn("chat api key not set; chat replies will use the fallback message")
		return chat.UnconfiguredCompleter{}
	}
	completer, err := chat.NewGeminiCompleter(ctx, chat.GeminiConfig{
		APIKey:   chatConfig.APIKey,
		Model:    chatConfig.Model,
		Endpoint: chatConfig.Endpoint,
	})
	if err != nil {
		logger.Warn("chat completer unavailable", zap.Error(err))
		return chat.UnconfiguredCompleter{}
	}
	return completer
}

func newPublisher(url string, logger *zap.Logger) events.Publisher {
	if strings.TrimSpace(url) == "" {
		return events.NoopPublisher{}
	}
	publisher, err := events.NewRabbitMQPublisher(url)
	if err != nil {
		logger.Warn("rabbitmq unavailable; document events disabled", zap.Error(err))
		return events.NoopPublisher{}
	}
	return publisher
}

func healthChecks(db *gorm.DB, blobStore media.BlobStore, rabbitMQURL string) []server.HealthCheck {
	checks := []server.HealthCheck{
		{
			Name:     "db",
			Critical: true,
			Check: func(ctx context.Context) error {
				sqlDB, err := db.DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			},
		},
		{
			Name:     "media",
			Critical: true,
			Check: func(ctx context.Context) error {
				reader, err := blobStore.Open(ctx, "__health__")
				if errors.Is(err, media.ErrNotFound) {
					return nil
				}
				if err != nil {
					return err
				}
				return reader.Close()
			},
		},
	}
	if strings.TrimSpace(rabbitMQURL) != "" {
		checks = append(checks, server.HealthCheck{
			Name: "rabbitmq",
			Check: func(context.Context) error {
				return events.CheckBroker(rabbitMQURL)
			},
		})
	}
	return checks
}
