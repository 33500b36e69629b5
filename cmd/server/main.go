package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"runtime/debug"
	"sort"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/iota-uz/identity-sync/internal/platform"
	"github.com/iota-uz/identity-sync/migrations"
	"github.com/iota-uz/identity-sync/modules/identity"
	"github.com/iota-uz/identity-sync/modules/identity/infrastructure/persistence"
	"github.com/iota-uz/identity-sync/modules/identity/services"
	"github.com/iota-uz/identity-sync/pkg/configuration"
	"github.com/iota-uz/identity-sync/pkg/ingestion"
	"github.com/iota-uz/identity-sync/pkg/ingestion/kafkasource"
	"github.com/iota-uz/identity-sync/pkg/logging"
	"github.com/iota-uz/identity-sync/pkg/metrics"
	"github.com/iota-uz/identity-sync/pkg/server"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			log.Println(r)
			debug.PrintStack()
			os.Exit(1)
		}
	}()

	conf := configuration.Use()
	logger := conf.Logger()

	var tracingCleanup func()
	if conf.OpenTelemetry.Enabled {
		tracingCleanup = logging.SetupTracing(
			context.Background(),
			conf.OpenTelemetry.ServiceName,
			conf.OpenTelemetry.TempoURL,
			logger.WithField("component", "tracing"),
		)
		logger.Info("OpenTelemetry tracing enabled, exporting to Tempo at " + conf.OpenTelemetry.TempoURL)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, conf, logger)
	stop()
	if tracingCleanup != nil {
		tracingCleanup()
	}
	if err != nil {
		logger.WithError(err).Error("identity-sync stopped")
		os.Exit(1)
	}
	logger.Info("identity-sync stopped")
}

func run(ctx context.Context, conf *configuration.Configuration, logger *logrus.Logger) error {
	if conf.MigrationsEnabled {
		if err := migrations.Up(ctx, conf.Database.Opts, logger.WithField("component", "migrations")); err != nil {
			return err
		}
	}

	pool, err := platform.ConnectDB(ctx, conf.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	rdb, err := platform.ConnectRedis(ctx, conf.RedisURL)
	if err != nil {
		return err
	}
	defer func() { _ = rdb.Close() }()

	dir, err := identity.NewDirectory(conf.Directory, rdb.Cmdable(), logger.WithField("component", "directory"))
	if err != nil {
		return err
	}

	policy := services.ErrorPolicy{Strict: conf.ErrorPolicyStrict}
	logger.WithField("policy", policy.String()).Info("error policy")

	module := identity.NewModule(identity.ModuleOptions{
		Store:     persistence.NewPostgresStore(pool),
		Directory: dir,
		Policy:    policy,
		Logger:    logger.WithField("module", "identity"),
	})

	live := ingestion.NewFlag(true)
	loops, err := buildLoops(conf, module, live, logger)
	if err != nil {
		return err
	}

	controllers := []server.Controller{metrics.NewHealthController(live, loopStatuses(loops)...)}
	if conf.Prometheus.Enabled {
		controllers = append(controllers, metrics.NewPrometheusController(conf.Prometheus.Path, nil))
	}
	ops := server.NewHTTPServer(controllers...)

	runners := make([]ingestion.Runner, 0, len(loops))
	for _, l := range loops {
		runners = append(runners, l)
	}
	supervisor := ingestion.NewSupervisor(live, logger.WithField("component", "supervisor"), runners...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("ops endpoints listening on %s", conf.SocketAddress)
		return ops.Start(conf.SocketAddress)
	})
	g.Go(func() error {
		err := supervisor.Run(gctx)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if sErr := ops.Shutdown(shutdownCtx); sErr != nil {
			logger.WithError(sErr).Warn("ops server shutdown failed")
		}
		return err
	})
	return g.Wait()
}

func buildLoops(
	conf *configuration.Configuration,
	module *identity.Module,
	live *ingestion.Flag,
	logger *logrus.Logger,
) ([]*ingestion.Loop, error) {
	handlers := module.Handlers(conf.Kafka)
	topics := make([]string, 0, len(handlers))
	for topic := range handlers {
		topics = append(topics, topic)
	}
	sort.Strings(topics)

	loops := make([]*ingestion.Loop, 0, len(topics))
	for _, topic := range topics {
		topicLog := logger.WithField("topic", topic)
		src, err := kafkasource.New(kafkasource.Options{
			Brokers:  conf.Kafka.BrokerList(),
			GroupID:  conf.Kafka.GroupID,
			Topic:    topic,
			ClientID: conf.Kafka.ClientID,
			Logger:   topicLog,
		})
		if err != nil {
			return nil, err
		}
		loop, err := ingestion.NewLoop(topic, src, handlers[topic], live, ingestion.LoopOptions{
			PollTimeout:   conf.Ingestion.PollTimeout,
			Backoff:       conf.Ingestion.Backoff,
			MaxBackoff:    conf.Ingestion.MaxBackoff,
			JitterMax:     conf.Ingestion.Jitter,
			ProgressEvery: conf.Ingestion.ProgressEvery,
			Logger:        topicLog,
		})
		if err != nil {
			return nil, err
		}
		loops = append(loops, loop)
	}
	if len(loops) == 0 {
		return nil, errors.New("no topics configured")
	}
	return loops, nil
}

func loopStatuses(loops []*ingestion.Loop) []metrics.LoopStatus {
	out := make([]metrics.LoopStatus, 0, len(loops))
	for _, l := range loops {
		out = append(out, l)
	}
	return out
}
