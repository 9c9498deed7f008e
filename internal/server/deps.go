package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/messagestack/apiserver/config"
	"github.com/messagestack/apiserver/internal/cryptoutil"
	"github.com/messagestack/apiserver/internal/db"
	"github.com/messagestack/apiserver/internal/metrics"
	"github.com/messagestack/apiserver/internal/mq"
	"github.com/messagestack/apiserver/internal/services"
	"github.com/messagestack/apiserver/internal/storage"
	"github.com/messagestack/apiserver/internal/store"
	"github.com/messagestack/apiserver/internal/store/memory"
	"go.uber.org/zap"
)

// Dependencies holds the services shared by the server, worker and sweep
// commands.
type Dependencies struct {
	Config   config.Config
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Settings *config.PrivacySettingsSource

	Audit    *services.AuditLog
	Identity *services.IdentityService
	Ledger   *services.ConsentLedger
	Pipeline *services.SurveyPipeline
	AI       *services.AIProcessor
	Reports  *services.ReportService

	// Events is never nil. Without a configured broker it is an in-process
	// backend and LocalEvents is true.
	Events      *mq.MQ
	LocalEvents bool
	Storage     *storage.Storage

	closers []func() error
}

type repositories struct {
	users     services.UserRepository
	consents  services.ConsentRepository
	responses services.ResponseRepository
	aiRecords services.AIRecordRepository
	audit     services.AuditRepository
}

// Build validates cfg and wires every service. Close releases the
// connections it opened.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Dependencies, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := &Dependencies{Config: cfg, Logger: logger, Metrics: metrics.New()}
	if err := d.build(ctx); err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

func (d *Dependencies) build(ctx context.Context) error {
	cfg := d.Config

	repos, err := d.openRepositories(ctx)
	if err != nil {
		return err
	}

	keyring, err := cryptoutil.NewKeyring(cfg.Crypto.MasterSecret, cfg.Auth.JWTSecret)
	if err != nil {
		return err
	}
	answers, err := keyring.AnswerCipher()
	if err != nil {
		return fmt.Errorf("answer cipher: %w", err)
	}
	aiData, err := keyring.AIDataCipher()
	if err != nil {
		return fmt.Errorf("ai data cipher: %w", err)
	}
	digester := keyring.Digester()

	d.Settings, err = config.LoadPrivacySettings(cfg.Privacy.SettingsFile)
	if err != nil {
		return err
	}

	events, err := mq.Open(ctx, cfg.MQ)
	if err != nil {
		return err
	}
	if events == nil {
		events = mq.New(mq.NewLocalBackend())
		d.LocalEvents = true
	}
	d.Events = events
	d.closers = append(d.closers, events.Close)

	d.Storage, err = storage.Open(ctx, cfg.ObjectStorage)
	if err != nil {
		return err
	}

	d.Audit = services.NewAuditLog(repos.audit, d.Logger.Named("audit")).WithPublisher(events)
	d.Identity, err = services.NewIdentityService(repos.users, services.IdentityConfig{
		SigningKey:  keyring.SigningKey(),
		BcryptCost:  cfg.Auth.BcryptCost,
		SessionTTL:  cfg.Auth.SessionTTL,
		ExtendedTTL: cfg.Auth.ExtendedTTL,
	}, d.Audit, d.Logger.Named("identity"))
	if err != nil {
		return err
	}
	d.Ledger = services.NewConsentLedger(repos.consents, repos.aiRecords, digester, d.Audit, d.Logger.Named("consent")).
		WithPublisher(events).
		WithMetrics(d.Metrics)
	d.Pipeline = services.NewSurveyPipeline(repos.responses, d.Ledger, answers, digester, d.Audit, d.Logger.Named("survey")).
		WithMetrics(d.Metrics)
	d.AI = services.NewAIProcessor(repos.aiRecords, d.Ledger, aiData, digester, d.Audit, d.Logger.Named("ai")).
		WithPublisher(events).
		WithMetrics(d.Metrics)
	d.Reports = services.NewReportService(d.Ledger, d.Audit, repos.aiRecords, digester, d.Logger.Named("report"))
	if d.Storage != nil {
		d.Reports.WithStorage(d.Storage)
	}

	d.Logger.Info("dependencies ready",
		zap.String("store_driver", cfg.StoreDriver),
		zap.String("mq_driver", cfg.MQ.Driver),
		zap.String("storage_driver", cfg.ObjectStorage.Driver),
		zap.Bool("local_events", d.LocalEvents),
	)
	return nil
}

func (d *Dependencies) openRepositories(ctx context.Context) (repositories, error) {
	switch d.Config.StoreDriver {
	case config.StoreDriverMemory:
		d.Logger.Warn("using the in-memory store; data is lost on exit")
		mem := memory.New()
		return repositories{
			users:     mem.Users,
			consents:  mem.Consents,
			responses: mem.Responses,
			aiRecords: mem.AIRecords,
			audit:     mem.Audit,
		}, nil
	default:
		conn, err := db.Open(ctx, d.Config)
		if err != nil {
			return repositories{}, fmt.Errorf("open database: %w", err)
		}
		d.closers = append(d.closers, conn.Close)
		return repositories{
			users:     store.NewUserRepository(conn),
			consents:  store.NewConsentRepository(conn),
			responses: store.NewResponseRepository(conn),
			aiRecords: store.NewAIRecordRepository(conn),
			audit:     store.NewAuditRepository(conn),
		}, nil
	}
}

// Close releases connections in reverse order of opening.
func (d *Dependencies) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}
