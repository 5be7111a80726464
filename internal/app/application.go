package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"

	"github.com/R3E-Network/storefront/internal/app/mail"
	"github.com/R3E-Network/storefront/internal/app/services/abandonment"
	"github.com/R3E-Network/storefront/internal/app/services/auth"
	"github.com/R3E-Network/storefront/internal/app/services/cart"
	"github.com/R3E-Network/storefront/internal/app/services/catalog"
	"github.com/R3E-Network/storefront/internal/app/services/coupons"
	"github.com/R3E-Network/storefront/internal/app/services/orders"
	"github.com/R3E-Network/storefront/internal/app/services/scheduler"
	"github.com/R3E-Network/storefront/internal/app/services/users"
	"github.com/R3E-Network/storefront/internal/app/services/wishlist"
	"github.com/R3E-Network/storefront/internal/app/storage"
	"github.com/R3E-Network/storefront/internal/app/storage/memory"
	"github.com/R3E-Network/storefront/internal/app/storage/postgres"
	"github.com/R3E-Network/storefront/internal/app/storage/postgres/migrations"
	"github.com/R3E-Network/storefront/internal/app/system"
	"github.com/R3E-Network/storefront/internal/config"
	"github.com/R3E-Network/storefront/pkg/logger"
)

// Backend provides every store plus transactions over the same data.
type Backend interface {
	storage.TxRunner
	Stores() storage.Stores
}

// Application ties storefront services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger
	cfg     *config.Config

	db    *sqlx.DB
	redis *redis.Client

	Stores storage.Stores
	Mailer mail.Sender

	Auth        *auth.Service
	Catalog     *catalog.Service
	Carts       *cart.Service
	Orders      *orders.Service
	Wishlist    *wishlist.Service
	Coupons     *coupons.Service
	Users       *users.Service
	Tracker     *abandonment.Tracker
	Abandonment *abandonment.Processor
	Scheduler   *scheduler.Scheduler
}

// Option customizes application construction.
type Option func(*options)

type options struct {
	sender mail.Sender
	cache  catalog.ProductCache
}

// WithSender replaces the configured mail transport.
func WithSender(sender mail.Sender) Option {
	return func(o *options) { o.sender = sender }
}

// WithProductCache replaces the configured product cache.
func WithProductCache(cache catalog.ProductCache) Option {
	return func(o *options) { o.cache = cache }
}

// New connects the configured backends and builds the application. Without a
// database DSN the in-memory store is used.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger, opts ...Option) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	var (
		backend Backend
		db      *sqlx.DB
	)
	if dsn := strings.TrimSpace(cfg.Database.DSN); dsn != "" {
		var err error
		db, err = postgres.Open(ctx, dsn, postgres.PoolOptions{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			return nil, err
		}
		if cfg.Database.MigrateOnStart {
			if err := migrations.Up(db.DB); err != nil {
				_ = db.Close()
				return nil, err
			}
			log.Info("database migrations applied")
		}
		backend = postgres.New(db)
	} else {
		log.Warn("database dsn not set; using in-memory store")
		backend = memory.New()
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var rdb *redis.Client
	if o.cache == nil && strings.TrimSpace(cfg.Redis.Addr) != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.WithError(err).Warn("redis unreachable; product cache disabled")
			_ = rdb.Close()
			rdb = nil
		} else {
			opts = append(opts, WithProductCache(catalog.NewRedisCache(rdb, cfg.Redis.ProductTTL)))
		}
	}

	application, err := NewWithBackend(cfg, backend, log, opts...)
	if err != nil {
		if rdb != nil {
			_ = rdb.Close()
		}
		if db != nil {
			_ = db.Close()
		}
		return nil, err
	}
	application.db = db
	application.redis = rdb
	return application, nil
}

// NewWithBackend builds the application over an existing backend.
func NewWithBackend(cfg *config.Config, backend Backend, log *logger.Logger, opts ...Option) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	if log == nil {
		log = logger.NewDefault("app")
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	stores := backend.Stores()

	sender := o.sender
	if sender == nil {
		sender = newSender(cfg.Mail, log)
	}

	authService := auth.New(stores.Users, auth.Config{
		Secret:     []byte(cfg.Auth.JWTSecret),
		Issuer:     cfg.Auth.Issuer,
		TokenTTL:   cfg.Auth.TokenTTL,
		BcryptCost: cfg.Auth.BcryptCost,
	}, log.Named("auth"))

	catalogService := catalog.New(stores.Catalog, o.cache, log.Named("catalog"))
	tracker := abandonment.NewTracker(stores.Abandonment, log.Named("abandonment-tracker"))
	cartService := cart.New(stores.Carts, stores.Catalog, tracker, log.Named("cart"))
	orderService := orders.New(stores, backend, tracker, log.Named("orders"))
	orderService.WithInvalidator(catalogService)

	processor := abandonment.NewProcessor(stores.Abandonment, sender, abandonment.Config{
		FirstReminderAfter:  cfg.Abandonment.FirstReminderAfter,
		SecondReminderAfter: cfg.Abandonment.SecondReminderAfter,
		FinalReminderAfter:  cfg.Abandonment.FinalReminderAfter,
		Retention:           cfg.Abandonment.Retention,
		BatchSize:           cfg.Abandonment.BatchSize,
		StoreName:           cfg.Abandonment.StoreName,
		StoreURL:            cfg.Abandonment.StoreURL,
	}, log.Named("abandonment"))

	sched := scheduler.New(log.Named("scheduler"))
	if err := registerTasks(sched, cfg.Scheduler, processor); err != nil {
		return nil, err
	}

	manager := system.NewManager()
	if cfg.Scheduler.Enabled {
		if err := manager.Register(sched); err != nil {
			return nil, fmt.Errorf("register scheduler: %w", err)
		}
	} else {
		log.Warn("scheduler disabled; reminders only run on demand")
	}

	return &Application{
		manager:     manager,
		log:         log,
		cfg:         cfg,
		Stores:      stores,
		Mailer:      sender,
		Auth:        authService,
		Catalog:     catalogService,
		Carts:       cartService,
		Orders:      orderService,
		Wishlist:    wishlist.New(stores.Wishlists, stores.Catalog, log.Named("wishlist")),
		Coupons:     coupons.New(stores.Coupons, log.Named("coupons")),
		Users:       users.New(stores.Users, log.Named("users")),
		Tracker:     tracker,
		Abandonment: processor,
		Scheduler:   sched,
	}, nil
}

func newSender(cfg config.MailConfig, log *logger.Logger) mail.Sender {
	if !cfg.Enabled() {
		log.Warn("smtp host not set; reminder emails are logged instead of sent")
		return mail.NewLogSender(log.Named("mail"))
	}
	return mail.NewSMTPSender(mail.SMTPConfig{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		SenderAddress:      cfg.SenderAddress,
		SenderName:         cfg.SenderName,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		RetryCount:         cfg.RetryCount,
		RetryBackoffMs:     cfg.RetryBackoffMs,
	}, log.Named("mail"))
}

func registerTasks(sched *scheduler.Scheduler, cfg config.SchedulerConfig, processor *abandonment.Processor) error {
	tasks := []struct {
		name string
		expr string
		run  func(ctx context.Context) error
	}{
		{scheduler.TaskCartAbandonment, cfg.CartAbandonment, func(ctx context.Context) error {
			_, err := processor.ProcessAbandonedCarts(ctx)
			return err
		}},
		{scheduler.TaskCleanup, cfg.Cleanup, func(ctx context.Context) error {
			_, err := processor.CleanupOldRecords(ctx)
			return err
		}},
		{scheduler.TaskEmailHealthCheck, cfg.EmailHealthCheck, processor.VerifySender},
	}
	for _, t := range tasks {
		// A disabled scheduler never fires, so blank expressions are allowed.
		if !cfg.Enabled && strings.TrimSpace(t.expr) == "" {
			continue
		}
		schedule, err := scheduler.Parse(t.expr)
		if err != nil {
			return fmt.Errorf("schedule %s: %w", t.name, err)
		}
		if err := sched.Register(scheduler.Task{Name: t.name, Schedule: schedule, Run: t.run}); err != nil {
			return fmt.Errorf("register task %s: %w", t.name, err)
		}
	}
	return nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start verifies the mail transport and begins all registered services. A
// mail failure is logged and does not prevent startup.
func (a *Application) Start(ctx context.Context) error {
	verifyCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := a.Abandonment.VerifySender(verifyCtx); err != nil {
		a.log.WithError(err).Warn("mail transport not ready; reminders will fail until it is")
	}
	return a.manager.Start(ctx)
}

// Stop stops all services and releases connections.
func (a *Application) Stop(ctx context.Context) error {
	errs := []error{a.manager.Stop(ctx)}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}

// Ping checks the backing database when one is configured.
func (a *Application) Ping(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	return a.db.PingContext(ctx)
}
