package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/rescuemesh/notification-service/internal/channel"
	config "github.com/rescuemesh/notification-service/internal/config/notifier"
	"github.com/rescuemesh/notification-service/internal/dispatch"
	"github.com/rescuemesh/notification-service/internal/obs"
	"github.com/rescuemesh/notification-service/internal/profile"
	kafkax "github.com/rescuemesh/notification-service/internal/repository/kafka"
	pg "github.com/rescuemesh/notification-service/internal/repository/postgres"
	"github.com/rescuemesh/notification-service/internal/services/notifier"
)

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

func main() {
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatal(err)
	}

	l, err := obs.NewLogger(cfg.Log.AsLoggerConfig(cfg.App))
	if err != nil {
		log.Fatal(err)
	}

	l.Info("starting notifier",
		zap.Any("kafka_in", cfg.In),
		zap.Int("workers", cfg.Consumer.Workers),
		zap.Int("max_attempts", cfg.Consumer.MaxAttempts),
		zap.String("dlq_topic", cfg.Consumer.DLQTopic),
		zap.String("metrics_addr", cfg.Server.MetricsAddr),
	)

	otelCloser, err := obs.SetupOTel(rootCtx, cfg.OTEL.AsOTELConfig())
	if err != nil {
		l.Warn("otel init", zap.Error(err))
	}
	defer func() { _ = otelCloser.Shutdown(context.Background()) }()

	db, err := pg.NewDB(rootCtx, cfg.DB)
	if err != nil {
		l.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	l.Info("db connected")

	ms := obs.BootstrapMetricsServer(cfg.Server.MetricsAddr, func(ctx context.Context) error {
		hctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer cancel()
		return db.Pool.Ping(hctx)
	}, l)

	_ = kafkax.EnsureTopic(rootCtx, cfg.In.Brokers, kafkax.TopicSpec{Name: cfg.In.Topic}, l)
	_ = kafkax.EnsureTopic(rootCtx, cfg.In.Brokers, kafkax.TopicSpec{Name: cfg.Consumer.DLQTopic}, l)

	workers := cfg.Consumer.Workers
	if workers < 1 {
		workers = 1
	}
	consumers := make([]*kafkax.Consumer, 0, workers)
	for i := 0; i < workers; i++ {
		c := kafkax.BootstrapConsumer(rootCtx, cfg.In.AsConsumerConfig(), l).WithLogger(l)
		consumers = append(consumers, c)
	}
	defer func() {
		for _, c := range consumers {
			_ = c.Close()
		}
	}()
	l.Info("kafka consumers initialized",
		zap.Strings("brokers", cfg.In.Brokers),
		zap.String("group_id", cfg.In.GroupID),
		zap.String("topic", cfg.In.Topic),
		zap.Int("count", len(consumers)),
	)

	requeue := kafkax.NewProducer(cfg.In.Brokers, cfg.In.Topic).WithLogger(l)
	dead := kafkax.NewProducer(cfg.In.Brokers, cfg.Consumer.DLQTopic).WithLogger(l)
	defer func() {
		_ = requeue.Close()
		_ = dead.Close()
	}()
	events := kafkax.NewNotifyEventsKafka(requeue, dead)

	httpc := &http.Client{Timeout: 15 * time.Second}
	senders, err := channel.BuildSenders(rootCtx, cfg.Channels, httpc, l)
	if err != nil {
		l.Fatal("channel setup", zap.Error(err))
	}

	profiles := profile.NewClient(cfg.Profile, httpc).WithLogger(l)
	sos := profile.NewSOSClient(cfg.SOS, httpc).WithLogger(l)

	disp := dispatch.New(pg.NewNotificationRepo(db), senders, profiles, systemClock{}, l)
	runner := notifier.NewRunner(l, consumers, disp, notifier.NewMapper(sos, l), events, cfg.Consumer.MaxAttempts)

	errCh := make(chan error, 1)
	go func() {
		l.Info("runner starting")
		errCh <- runner.Run(rootCtx)
	}()

	var runErr error
	select {
	case <-rootCtx.Done():
		l.Info("shutdown signal")
	case runErr = <-errCh:
		if runErr != nil && !errors.Is(runErr, context.Canceled) {
			l.Error("runner error", zap.Error(runErr))
		}
	}

	shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = ms.Shutdown(shCtx)
	l.Info("bye")
}
