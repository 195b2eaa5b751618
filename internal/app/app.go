// Package app assembles the blood bank services and HTTP surface from
// configuration. Both binaries and the end-to-end tests build through it.
package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/bloodbank/internal/compatibility"
	"github.com/jwalitptl/bloodbank/internal/config"
	"github.com/jwalitptl/bloodbank/internal/email"
	auditHandler "github.com/jwalitptl/bloodbank/internal/handler/audit"
	authHandler "github.com/jwalitptl/bloodbank/internal/handler/auth"
	bloodRequestHandler "github.com/jwalitptl/bloodbank/internal/handler/bloodrequest"
	bloodUnitHandler "github.com/jwalitptl/bloodbank/internal/handler/bloodunit"
	donationHandler "github.com/jwalitptl/bloodbank/internal/handler/donation"
	donorHandler "github.com/jwalitptl/bloodbank/internal/handler/donor"
	"github.com/jwalitptl/bloodbank/internal/handler/health"
	promHandler "github.com/jwalitptl/bloodbank/internal/handler/prometheus"
	userHandler "github.com/jwalitptl/bloodbank/internal/handler/user"
	"github.com/jwalitptl/bloodbank/internal/middleware"
	"github.com/jwalitptl/bloodbank/internal/model"
	"github.com/jwalitptl/bloodbank/internal/repository"
	"github.com/jwalitptl/bloodbank/internal/repository/memory"
	"github.com/jwalitptl/bloodbank/internal/repository/postgres"
	"github.com/jwalitptl/bloodbank/internal/router"
	"github.com/jwalitptl/bloodbank/internal/service/allocation"
	"github.com/jwalitptl/bloodbank/internal/service/audit"
	authService "github.com/jwalitptl/bloodbank/internal/service/auth"
	"github.com/jwalitptl/bloodbank/internal/service/bloodrequest"
	"github.com/jwalitptl/bloodbank/internal/service/broadcast"
	"github.com/jwalitptl/bloodbank/internal/service/donation"
	"github.com/jwalitptl/bloodbank/internal/service/eligibility"
	"github.com/jwalitptl/bloodbank/internal/service/event"
	"github.com/jwalitptl/bloodbank/internal/service/inventory"
	"github.com/jwalitptl/bloodbank/internal/service/notification"
	userService "github.com/jwalitptl/bloodbank/internal/service/user"
	"github.com/jwalitptl/bloodbank/pkg/auth"
	apperrors "github.com/jwalitptl/bloodbank/pkg/errors"
	"github.com/jwalitptl/bloodbank/pkg/logger"
	"github.com/jwalitptl/bloodbank/pkg/messaging"
	"github.com/jwalitptl/bloodbank/pkg/messaging/redis"
	"github.com/jwalitptl/bloodbank/pkg/metrics"
	"github.com/jwalitptl/bloodbank/pkg/security"
	"github.com/jwalitptl/bloodbank/pkg/validator"
)

// Infra is the storage and messaging a process runs against.
type Infra struct {
	Repos  *repository.Repositories
	Broker messaging.Broker
	Checks map[string]health.Check

	closers []func() error
}

// Close releases connections in reverse order of opening.
func (i *Infra) Close() error {
	var first error
	for n := len(i.closers) - 1; n >= 0; n-- {
		if err := i.closers[n](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// OpenInfra connects the configured database driver and broker. The memory
// driver keeps everything in process; an empty Redis URL publishes in
// process too.
func OpenInfra(ctx context.Context, cfg *config.Config, m *metrics.Metrics, log *logger.Logger) (*Infra, error) {
	infra := &Infra{Checks: map[string]health.Check{}}

	switch cfg.Database.Driver {
	case config.DriverMemory:
		infra.Repos = memory.NewStore().Repositories()
		log.Warn("using in-memory storage; data is lost on restart")
	default:
		db, err := postgres.NewDB(cfg.Database)
		if err != nil {
			return nil, err
		}
		infra.Repos = postgres.NewRepositories(db)
		infra.Checks["database"] = pingDB(db)
		infra.closers = append(infra.closers, db.Close)
	}

	if cfg.Redis.URL == "" {
		infra.Broker = messaging.NewMemoryBroker()
		log.Warn("redis url not set; publishing events in process")
	} else {
		broker, err := redis.NewRedisBroker(ctx, cfg.Redis.ToBrokerConfig(), log, m)
		if err != nil {
			_ = infra.Close()
			return nil, err
		}
		infra.Broker = broker
		infra.Checks["redis"] = broker.Ping
	}
	infra.closers = append(infra.closers, infra.Broker.Close)

	return infra, nil
}

func pingDB(db *sqlx.DB) health.Check {
	return func(ctx context.Context) error {
		return db.PingContext(ctx)
	}
}

// Services are the domain services behind the HTTP handlers and workers.
type Services struct {
	Matrix        *compatibility.Matrix
	Audit         *audit.Service
	Auth          *authService.Service
	Users         *userService.Service
	Inventory     *inventory.Service
	Allocator     *allocation.Allocator
	BloodRequests *bloodrequest.Service
	Donations     *donation.Service
	Notifier      *eligibility.Notifier
	Broadcasts    *broadcast.Service
	JWT           auth.JWTService
}

// Options tune construction for tests.
type Options struct {
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

func NewServices(cfg *config.Config, infra *Infra, m *metrics.Metrics, log *logger.Logger, opts Options) (*Services, error) {
	matrix, err := compatibility.LoadFile(cfg.Allocation.MatrixFile)
	if err != nil {
		return nil, err
	}
	types, err := donation.NewTypeTable(cfg.Donation.Types)
	if err != nil {
		return nil, fmt.Errorf("invalid donation types: %w", err)
	}
	jwtSvc, err := auth.NewJWTService(cfg.JWT.ToAuthConfig())
	if err != nil {
		return nil, err
	}

	cost := opts.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hasher := security.NewBcryptHasher(cost)

	repos := infra.Repos
	events := event.NewEventService(repos.Outbox)
	auditSvc := audit.NewService(repos.Audits)
	auditor := audit.NewAuditLogger(auditSvc, log)

	allocator := allocation.NewAllocator(matrix, repos, events, m, log)
	notifier := eligibility.NewNotifier(matrix, repos.Users)
	dispatcher := notification.NewService(email.New(cfg.SMTP.ToEmailConfig(), log), infra.Broker, m, log)

	return &Services{
		Matrix:        matrix,
		Audit:         auditSvc,
		Auth:          authService.NewService(repos.Users, jwtSvc, hasher, auditor),
		Users:         userService.NewService(repos.Users, matrix, hasher, auditor),
		Inventory:     inventory.NewService(repos.BloodUnits, matrix, auditor, m, log),
		Allocator:     allocator,
		BloodRequests: bloodrequest.NewService(repos, matrix, allocator, events, auditor, log),
		Donations: donation.NewService(repos, donation.Options{
			ProgramCode: cfg.Allocation.ProgramCode,
			Types:       types,
		}, events, auditor, m, log),
		Notifier: notifier,
		Broadcasts: broadcast.NewService(repos.BloodRequests, notifier, dispatcher, events, auditor, m, log, broadcast.Options{
			DedupeWindow: cfg.Broadcast.DedupeWindow,
			Concurrency:  cfg.Broadcast.Concurrency,
		}),
		JWT: jwtSvc,
	}, nil
}

// NewRouter mounts every handler on a gin engine.
func NewRouter(cfg *config.Config, svcs *Services, infra *Infra, reg *prometheus.Registry, log *logger.Logger) (*router.Router, error) {
	if err := validator.RegisterGin(); err != nil {
		return nil, err
	}
	authMW := middleware.NewAuthMiddleware(svcs.Auth)

	return router.NewRouter(authMW, router.Handlers{
		Health:        health.NewHandler(infra.Checks),
		Auth:          authHandler.NewHandler(svcs.Auth),
		BloodRequests: bloodRequestHandler.NewHandler(svcs.BloodRequests, svcs.Broadcasts, authMW),
		BloodUnits:    bloodUnitHandler.NewHandler(svcs.Inventory),
		Donations:     donationHandler.NewHandler(svcs.Donations),
		Donors:        donorHandler.NewHandler(svcs.Users, svcs.Notifier),
		Users:         userHandler.NewHandler(svcs.Users),
		Audit:         auditHandler.NewHandler(svcs.Audit),
	}, promHandler.New(reg), log, router.RouterConfig{
		RateLimitEnabled: cfg.RateLimit.Enabled,
		RateLimit:        rate.Limit(cfg.RateLimit.RequestsPerSecond),
		RateBurst:        cfg.RateLimit.Burst,
		MaxBodyBytes:     cfg.Server.MaxBodyBytes,
		CORSConfig:       middleware.DefaultCORSConfig(),
	}), nil
}

// EnsureAdmin creates the bootstrap admin unless an account with that email
// already exists.
func EnsureAdmin(ctx context.Context, svcs *Services, cfg config.BootstrapConfig, log *logger.Logger) error {
	if cfg.AdminEmail == "" {
		return nil
	}
	user, err := svcs.Users.CreateStaff(ctx, uuid.Nil, &model.CreateStaffRequest{
		Email:    cfg.AdminEmail,
		Name:     "Administrator",
		Password: cfg.AdminPassword,
		Role:     model.UserRoleAdmin,
	})
	if apperrors.HasCode(err, apperrors.ErrConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create bootstrap admin: %w", err)
	}
	log.Info("bootstrap admin created", "user_id", user.ID.String())
	return nil
}
