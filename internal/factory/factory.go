package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"account-service/internal/audit"
	"account-service/internal/bucketing"
	"account-service/internal/client"
	"account-service/internal/config"
	"account-service/internal/handler"
	"account-service/internal/hashing"
	"account-service/internal/lockout"
	"account-service/internal/notify"
	redisrepo "account-service/internal/repository/redis"
	"account-service/internal/repository/scylla"
	"account-service/internal/service"
	"account-service/internal/session"
	"account-service/internal/token"
	"account-service/internal/util"
)

// Factory manages the lifecycle of all application dependencies.
type Factory struct {
	config *config.Config

	// Clients
	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	clickhouseClient *client.ClickHouseClient

	// Managers
	hasher          *hashing.Hasher
	lockoutGuard    *lockout.Guard
	tokenManager    *token.ResetTokenManager
	sessionManager  *session.Manager
	bucketManager   *bucketing.Manager
	notifier        *notify.Notifier
	recorder        *audit.Recorder

	// Repositories and services
	userRepository scylla.UserRepository
	pendingStore   *redisrepo.PendingResetStore
	authService    *service.AuthService
	authHandler    *handler.AuthHandler

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory creates and initializes all application dependencies.
func NewFactory() (*Factory, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	factory := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if err := factory.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}
	if err := factory.initializeManagers(); err != nil {
		return nil, fmt.Errorf("failed to initialize managers: %w", err)
	}
	factory.wire()

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("kafka_enabled", cfg.Kafka.Enabled),
		util.Bool("clickhouse_enabled", cfg.ClickHouse.Enabled),
	)

	return factory, nil
}

// initializeClients initializes all external service clients with
// health checks. Redis and Scylla are mandatory; the audit sinks are
// optional and degrade to warnings.
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var initErrors []error

	// Redis
	if rc, err := client.NewRedisClient(f.config); err != nil {
		initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
	} else {
		f.redisClient = rc
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis health check: %w", err))
		} else {
			util.Info("Redis client initialized and healthy")
		}
	}

	// ScyllaDB
	if sc, err := scylla.NewScyllaClient(f.config); err != nil {
		initErrors = append(initErrors, fmt.Errorf("scylla: %w", err))
	} else {
		f.scyllaClient = sc
		if err := f.scyllaClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("scylla health check: %w", err))
		} else {
			util.Info("ScyllaDB client initialized and healthy")
		}
	}

	// Kafka
	if f.config.Kafka.Enabled {
		if producer, err := client.NewKafkaProducer(f.config); err != nil {
			util.Warn("Kafka producer initialization failed - proceeding without Kafka", util.ErrorField(err))
		} else {
			f.kafkaProducer = producer
		}
	}

	// ClickHouse
	if f.config.ClickHouse.Enabled {
		if ch, err := client.NewClickHouseClient(f.config); err != nil {
			util.Warn("ClickHouse initialization failed - proceeding without audit warehouse", util.ErrorField(err))
		} else {
			f.clickhouseClient = ch
		}
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

func (f *Factory) initializeManagers() error {
	f.hasher = hashing.NewHasher(hashing.DefaultParams())
	f.lockoutGuard = lockout.NewGuard(lockout.Policy{
		MaxFailedAttempts: f.config.Auth.MaxFailedAttempts,
		Window:            f.config.Auth.LockoutWindow,
	})
	f.bucketManager = bucketing.NewManager(f.config.Bucketing.UserBuckets)

	tokenManager, err := token.NewResetTokenManager(
		f.config.Auth.ResetTokenSecret, f.config.Auth.ResetTokenTTL)
	if err != nil {
		return err
	}
	f.tokenManager = tokenManager

	f.notifier = notify.NewNotifier(
		notify.NewEmailSender(f.config),
		notify.NewSMSSender(f.config),
		4, 256,
	)

	// The recorder accepts nil sinks; a disabled sink just drops its leg.
	var producer audit.EventProducer
	if f.kafkaProducer != nil {
		producer = f.kafkaProducer
	}
	var sink audit.EventSink
	if f.clickhouseClient != nil {
		sink = f.clickhouseClient
	}
	f.recorder = audit.NewRecorder(producer, sink, f.bucketManager)

	return nil
}

func (f *Factory) wire() {
	f.userRepository = scylla.NewUserRepository(f.scyllaClient)
	f.pendingStore = redisrepo.NewPendingResetStore(f.redisClient)
	f.sessionManager = session.NewManager(
		redisrepo.NewSessionStore(f.redisClient), f.config.Auth.SessionTTL)

	f.authService = service.NewAuthService(
		f.userRepository,
		f.hasher,
		f.lockoutGuard,
		f.tokenManager,
		f.pendingStore,
		f.sessionManager,
		f.notifier,
		f.recorder,
		f.bucketManager,
		f.config.Auth.OTPTTL,
	)

	f.authHandler = handler.NewAuthHandler(f.authService, util.Get())
}

func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.redisClient != nil {
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			healthErrors["redis"] = err
		}
	} else {
		healthErrors["redis"] = fmt.Errorf("redis client not initialized")
	}

	if f.scyllaClient != nil {
		if err := f.scyllaClient.HealthCheck(ctx); err != nil {
			healthErrors["scylla"] = err
		}
	} else {
		healthErrors["scylla"] = fmt.Errorf("scylla client not initialized")
	}

	if f.kafkaProducer != nil {
		if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
			healthErrors["kafka"] = err
		}
	}
	if f.clickhouseClient != nil {
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			healthErrors["clickhouse"] = err
		}
	}

	return healthErrors
}

func (f *Factory) IsHealthy(ctx context.Context) bool {
	healthErrors := f.HealthCheck(ctx)
	// The audit sinks are best-effort and never gate readiness.
	delete(healthErrors, "kafka")
	delete(healthErrors, "clickhouse")
	return len(healthErrors) == 0
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.notifier != nil {
			f.notifier.Close()
			util.Info("Notifier drained and stopped")
		}

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			}
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			}
		}

		if f.scyllaClient != nil {
			f.scyllaClient.Close()
			util.Info("ScyllaDB client closed")
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			}
		}

		util.Sync()
		util.Info("Factory shutdown completed")
	})

	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) AuthHandler() *handler.AuthHandler {
	return f.authHandler
}

func (f *Factory) AuthService() *service.AuthService {
	return f.authService
}
