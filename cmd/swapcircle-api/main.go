package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/barter"
	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/codes"
	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/community"
	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/config"
	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/database"
	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/listings"
	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/notifications"
	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/realtime"
	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/server"
	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/users"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var (
	cfgFile string
	envFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "swapcircle-api",
		Short: "SwapCircle barter marketplace backend service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newIssueTokenCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a dotenv file loaded before configuration")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("allowed-origins", defaults.GetString("http.allowed_origins"), "Comma separated CORS origins")
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, postgres, mysql)")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("database-dsn", defaults.GetString("database.dsn"), "Postgres or MySQL DSN")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Session token TTL in minutes")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", defaults.GetString("log.format"), "Log format (json, console)")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")
	cmd.PersistentFlags().String("redis-address", defaults.GetString("redis.address"), "Redis address for the realtime bridge")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "http.allowed_origins", "allowed-origins")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "redis.address", "redis-address")
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

func newIssueTokenCommand() *cobra.Command {
	var (
		userID      string
		displayName string
		email       string
	)
	cmd := &cobra.Command{
		Use:   "issue-token",
		Short: "Print a session token for local testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
				SigningSecret: []byte(appConfig.Auth.SigningSecret),
				Issuer:        appConfig.Auth.Issuer,
				TokenTTL:      appConfig.Auth.TokenTTL,
			})
			if err != nil {
				return err
			}
			token, expiresIn, err := issuer.IssueSessionToken(cmd.Context(), auth.SessionIdentity{
				UserID:      userID,
				DisplayName: displayName,
				Email:       email,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires in %ds\n", expiresIn)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "User identifier placed in the token")
	cmd.Flags().StringVar(&displayName, "name", "", "Display name placed in the token")
	cmd.Flags().StringVar(&email, "email", "", "Email placed in the token")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
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

	db, err := database.Open(appConfig.Database, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatcher := realtime.NewDispatcher()
	var publisher realtime.Publisher = dispatcher
	if appConfig.Redis.Enabled() {
		bridge, err := startRedisBridge(signalCtx, appConfig.Redis, dispatcher, logger)
		if err != nil {
			return err
		}
		publisher = bridge
	}

	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.Auth.SigningSecret),
		Issuer:        appConfig.Auth.Issuer,
		CookieName:    appConfig.Auth.CookieName,
	})
	if err != nil {
		return err
	}

	userService, err := users.NewService(users.ServiceConfig{Database: db, Clock: time.Now})
	if err != nil {
		return err
	}

	notificationService, err := notifications.NewService(notifications.ServiceConfig{
		Database:  db,
		Publisher: publisher,
		Clock:     time.Now,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	communityCodes, err := codes.NewRandom(appConfig.Community.CodeLength)
	if err != nil {
		return err
	}
	communityService, err := community.NewService(community.ServiceConfig{
		Repository: community.NewGormRepository(db),
		Notifier:   notificationService,
		Codes:      communityCodes,
		Clock:      time.Now,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	listingService, err := listings.NewService(listings.ServiceConfig{
		Repository: listings.NewGormRepository(db),
		Members:    communityService,
		Clock:      time.Now,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	barterCodes, err := codes.NewRandom(appConfig.Barter.CodeLength)
	if err != nil {
		return err
	}
	barterService, err := barter.NewService(barter.ServiceConfig{
		Repository:  barter.NewGormRepository(db),
		Listings:    listingService,
		Members:     communityService,
		Notifier:    notificationService,
		Codes:       barterCodes,
		IDProvider:  barter.NewUUIDProvider(),
		Clock:       time.Now,
		Logger:      logger,
		MaxAttempts: appConfig.Barter.MaxAttempts,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Sessions:          sessionValidator,
		Actors:            userService,
		BarterService:     barterService,
		CommunityService:  communityService,
		ListingsService:   listingService,
		Notifications:     notificationService,
		Realtime:          dispatcher,
		AllowedOrigins:    appConfig.AllowedOrigins,
		HeartbeatInterval: appConfig.Realtime.Heartbeat,
		Logger:            logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return signalCtx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("database_driver", appConfig.Database.Driver),
			zap.Bool("redis_bridge", appConfig.Redis.Enabled()))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// startRedisBridge connects to redis and relays remote events into the local
// dispatcher until ctx ends.
func startRedisBridge(ctx context.Context, cfg config.RedisConfig, local *realtime.Dispatcher, logger *zap.Logger) (*realtime.RedisBridge, error) {
	client, err := realtime.NewRedisClient(ctx, realtime.RedisOptions{
		Address:  cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	bridge, err := realtime.NewRedisBridge(realtime.RedisBridgeConfig{
		Client:  client,
		Channel: cfg.Channel,
		Local:   local,
		Logger:  logger,
	})
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	go func() {
		defer client.Close()
		if err := bridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("redis bridge stopped", zap.Error(err))
		}
	}()
	return bridge, nil
}
