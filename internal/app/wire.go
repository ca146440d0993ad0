package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	s3blob "github.com/gitadpal/voran/internal/blob/s3"
	"github.com/gitadpal/voran/internal/cache/redis"
	"github.com/gitadpal/voran/internal/config"
	"github.com/gitadpal/voran/internal/crypto"
	"github.com/gitadpal/voran/internal/domain"
	"github.com/gitadpal/voran/internal/extract"
	"github.com/gitadpal/voran/internal/fetch"
	"github.com/gitadpal/voran/internal/notify"
	"github.com/gitadpal/voran/internal/registry"
	"github.com/gitadpal/voran/internal/resolver"
	"github.com/gitadpal/voran/internal/secrets"
	"github.com/gitadpal/voran/internal/server/handler"
	"github.com/gitadpal/voran/internal/store/postgres"
	"github.com/gitadpal/voran/internal/validate"
)

// Dependencies bundles everything the modes need. Backends that are disabled
// in the configuration are left nil.
type Dependencies struct {
	Registry  *registry.Registry
	Secrets   domain.SecretResolver
	Validator *validate.Validator
	Signer    *crypto.ResolutionSigner

	// Stores
	ResolutionStore domain.ResolutionStore
	AuditStore      domain.AuditStore

	// Caches
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	RawArchive *s3blob.RawArchive

	Notifier *notify.Notifier

	Resolver *resolver.Resolver
	Verifier *resolver.Verifier

	// Probes back the health endpoint, keyed by backend name.
	Probes map[string]handler.Probe
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{Probes: map[string]handler.Probe{}}

	// --- Registry, secrets, validator ---
	reg, err := registry.Load(cfg.Registry.Path)
	if err != nil {
		return fail(fmt.Errorf("wire: %w", err))
	}
	deps.Registry = reg
	deps.Secrets = secrets.NewEnvResolver(cfg.Secrets.EnvPrefix, cfg.Secrets.DotenvFiles...)

	deps.Validator, err = validate.New(reg)
	if err != nil {
		return fail(fmt.Errorf("wire: %w", err))
	}

	// --- Signer ---
	keyHex, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Signer.PrivateKey,
		SecretName:       cfg.Signer.SecretName,
		EncryptedKeyPath: cfg.Signer.EncryptedKeyPath,
		KeyPassword:      cfg.Signer.KeyPassword,
	}, deps.Secrets)
	switch {
	case err == nil:
		deps.Signer, err = crypto.NewResolutionSigner(keyHex)
		if err != nil {
			return fail(fmt.Errorf("wire: signer: %w", err))
		}
		logger.InfoContext(ctx, "signer loaded", slog.String("address", deps.Signer.Address().Hex()))
	case errors.Is(err, domain.ErrMissingSecret) && cfg.Mode != "resolve":
		logger.WarnContext(ctx, "no signer key available; resolutions will fail at the sign stage",
			slog.String("error", err.Error()),
		)
	default:
		return fail(fmt.Errorf("wire: signer: %w", err))
	}

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}

		pool := pgClient.Pool()
		deps.ResolutionStore = postgres.NewResolutionStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.Probes["postgres"] = pgClient.Ping
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.Probes["redis"] = redisClient.Ping
	}

	// --- S3 blob storage ---
	var blobWriter domain.BlobWriter
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		blobWriter = s3blob.NewWriter(s3Client)
		deps.RawArchive = s3blob.NewRawArchive(blobWriter, s3blob.NewReader(s3Client), cfg.S3.RawPrefix)
		deps.Probes["s3"] = s3Client.Health
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramAPIBase,
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL, cfg.Notify.DiscordUsername))
	}
	if len(senders) > 0 {
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	}

	// --- Resolution engine ---
	fetcher := fetch.New(
		fetch.NewHTTPClient(fetch.HTTPConfig{
			Timeout:      cfg.Fetch.Timeout.Duration,
			MaxBodyBytes: cfg.Fetch.MaxBodyBytes,
			UserAgent:    cfg.Fetch.UserAgent,
		}, deps.Secrets, logger),
		fetch.NewBrowser(fetch.BrowserConfig{
			ExecPath:         cfg.Browser.ExecPath,
			Timeout:          cfg.Browser.Timeout.Duration,
			ScreenshotDir:    cfg.Browser.ScreenshotDir,
			ScreenshotPrefix: cfg.Browser.ScreenshotPrefix,
		}, blobWriter, logger),
	)
	extractor := extract.New(extract.NewSandbox(extract.SandboxConfig{
		DefineTimeout:    cfg.Sandbox.DefineTimeout.Duration,
		CallTimeout:      cfg.Sandbox.CallTimeout.Duration,
		MaxCallStackSize: cfg.Sandbox.MaxCallStackSize,
	}))

	policy, err := resolver.ParseBatchPolicy(cfg.Batch.Policy)
	if err != nil {
		return fail(fmt.Errorf("wire: %w", err))
	}

	rdeps := resolver.Deps{
		Fetcher:   fetcher,
		Extractor: extractor,
		Validator: deps.Validator,
		Locks:     deps.LockManager,
		Store:     deps.ResolutionStore,
		Audit:     deps.AuditStore,
		Bus:       deps.SignalBus,
	}
	// Typed nils must not leak into the interfaces.
	if deps.Signer != nil {
		rdeps.Signer = deps.Signer
	}
	if deps.RawArchive != nil {
		rdeps.Archive = deps.RawArchive
	}
	if deps.Notifier != nil {
		rdeps.Notifier = deps.Notifier
	}

	deps.Resolver = resolver.New(resolver.Config{
		LockTTL:          cfg.Redis.LockTTL.Duration,
		BatchPolicy:      policy,
		BatchConcurrency: cfg.Batch.Concurrency,
	}, rdeps, logger)

	if deps.RawArchive != nil {
		deps.Verifier = resolver.NewVerifier(deps.RawArchive)
	} else {
		deps.Verifier = resolver.NewVerifier(nil)
	}

	return deps, cleanup, nil
}
