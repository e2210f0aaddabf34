package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/csrf"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	guardian "github.com/goliatone/go-guardian"
	"github.com/goliatone/go-guardian/activitymap"
	"github.com/goliatone/go-guardian/api"
	"github.com/goliatone/go-guardian/config"
	"github.com/goliatone/go-guardian/middleware/identityware"
	"github.com/goliatone/go-guardian/onetime"
	"github.com/goliatone/go-guardian/repository"
	"github.com/goliatone/go-print"
	"github.com/redis/go-redis/v9"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", "guardiand")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, guardian.NewSlogLogger(slogger)); err != nil {
		slogger.Error("guardiand stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, logger guardian.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger.Info("configuration loaded", "version", cfg.Version, "driver", cfg.Database.Driver)

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	codes, closeCodes, err := openCodes(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeCodes()

	sink := activitymap.NewSink(func(_ context.Context, record activitymap.Record) error {
		logger.Info("activity", "record", print.MaybePrettyJSON(record))
		return nil
	})

	hasher := guardian.NewArgon2Hasher(cfg.Security.AuthSalt)
	codec := guardian.NewTokenCodec(cfg, guardian.WithTokenLogger(logger))
	extractor := guardian.NewIdentityExtractor(codec, cfg.GetTokenLookup(), cfg.GetAuthScheme())
	writer := guardian.NewCredentialWriter(cfg)
	authorizer := guardian.NewAuthorizer(extractor, writer,
		guardian.WithAuthorizerLogger(logger),
		guardian.WithSoftFail(cfg.Security.SoftFail),
	)

	guard := guardian.NewLifecycleGuard(store, hasher,
		guardian.WithLifecycleActivitySink(sink),
		guardian.WithLifecycleLogger(logger),
	)

	accountOpts := []guardian.AccountServiceOption{
		guardian.WithEmailConfirmation(cfg.Security.RequireEmailConfirmation),
		guardian.WithDeterministicIDs(cfg.Database.DeterministicIDs),
		guardian.WithPhoneRegion(cfg.Security.PhoneRegion),
		guardian.WithAccountActivitySink(sink),
		guardian.WithAccountLogger(logger),
	}
	if codes != nil {
		accountOpts = append(accountOpts, guardian.WithOneTimeCodes(codes, nil))
	}
	accounts := guardian.NewAccountService(store, hasher, accountOpts...)

	authenticator := guardian.NewAuthenticator(store, guard, codec,
		guardian.WithAuthenticatorActivitySink(sink),
		guardian.WithAuthenticatorLogger(logger),
		guardian.WithAuthenticatorPhoneRegion(cfg.Security.PhoneRegion),
	)

	controller := api.NewController(accounts, authenticator, guard, store,
		api.WithFeatures(api.StaticFeatures{
			api.FeatureSignup: cfg.Features.Auth.EnableSignup,
			api.FeatureLogin:  cfg.Features.Auth.EnableLogin,
		}),
		api.WithAdmins(api.AdminPolicyFunc(cfg.IsAdmin)),
		api.WithRateLimit(cfg.Security.LoginRatePerMinute),
		api.WithLogger(logger),
		api.WithVersion(cfg.Version),
	)

	app := fiber.New(fiber.Config{
		AppName:               "guardiand",
		DisableStartupMessage: true,
		ErrorHandler:          api.ErrorHandler(logger),
	})
	app.Use(fiberrecover.New())
	if cfg.Security.CSRFEnabled {
		app.Use(csrf.New(csrf.Config{
			CookieName:     "guardian-csrf",
			CookieSameSite: "Lax",
			CookieSecure:   cfg.Security.SessionSecure,
			CookieHTTPOnly: true,
		}))
	}
	app.Use(identityware.New(authorizer, identityware.Config{Logger: logger}))
	controller.Register(app)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "address", cfg.Server.Address)
		errCh <- app.Listen(cfg.Server.Address)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return app.ShutdownWithContext(shutdownCtx)
}

// openStore opens the configured store and waits for its schema to be ready
func openStore(ctx context.Context, cfg *config.Config, logger guardian.Logger) (guardian.AccountStore, func(), error) {
	if cfg.Database.Driver == config.DriverMongo {
		if cfg.Database.MongoURI == "" {
			return nil, nil, errors.New("database.mongo_uri is required for the mongo driver")
		}
		client, err := repository.ConnectMongo(ctx, cfg.Database.MongoURI)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() { _ = client.Disconnect(context.Background()) }

		coll := client.Database(cfg.Database.MongoDatabase).Collection(repository.DefaultAccountsCollection)
		store := repository.NewMongoAccountStore(coll, repository.WithMongoLogger(logger))
		if err := store.EnsureIndexes(ctx); err != nil {
			closeFn()
			return nil, nil, err
		}
		return store, closeFn, nil
	}

	db, err := guardian.OpenDatabase(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, nil, err
	}
	repo := guardian.NewRepositoryManager(db, cfg.Database.Driver, guardian.WithBunStoreLogger(logger))
	closeFn := func() { _ = repo.Close() }
	if err := repo.Validate(); err != nil {
		closeFn()
		return nil, nil, err
	}
	if err := repo.Migrate(ctx); err != nil {
		closeFn()
		return nil, nil, err
	}
	return repo.Accounts(), closeFn, nil
}

// openCodes connects redis when configured. Without it the account service
// runs with one-time codes disabled.
func openCodes(ctx context.Context, cfg *config.Config, logger guardian.Logger) (guardian.OneTimeCodes, func(), error) {
	if cfg.RedisURL == "" {
		logger.Warn("redis_url not set, one-time codes disabled")
		return nil, func() {}, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, guardian.NewInternalError(err, "invalid redis_url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, guardian.NewInternalError(err, "redis unreachable")
	}

	store := onetime.NewRedisStore(client,
		onetime.WithTTL(time.Duration(cfg.Security.OneTimeCodeDuration)*time.Minute),
		onetime.WithCodeLength(cfg.Security.OneTimeCodeLength),
		onetime.WithLogger(logger),
	)
	return store, func() { _ = client.Close() }, nil
}
