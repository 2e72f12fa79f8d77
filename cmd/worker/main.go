package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nsqio/go-nsq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hookline/hookline/internal/config"
	"github.com/hookline/hookline/internal/db"
	"github.com/hookline/hookline/internal/health"
	"github.com/hookline/hookline/internal/logging"
	"github.com/hookline/hookline/internal/metrics"
	"github.com/hookline/hookline/internal/store"
	"github.com/hookline/hookline/internal/tracing"
	"github.com/hookline/hookline/internal/worker"
)

func main() {
	cfg := config.FromEnv()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := logging.New("hookline-worker")

	shutdown, err := tracing.InitTracing(ctx, "hookline-worker")
	if err != nil {
		logger.Plain().WithError(err).Fatal("failed to initialize tracing")
	}
	defer shutdown()

	pool, err := db.Connect(ctx, cfg.DSN())
	if err != nil {
		logger.Plain().WithError(err).Fatal("db connect failed")
	}
	defer pool.Close()

	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", health.HTTPHandler(pool, nil))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	httpSrv := &http.Server{Addr: cfg.Worker.HTTPPort, Handler: mux}
	go func() {
		logger.Plain().WithField("addr", httpSrv.Addr).Info("worker HTTP server starting")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Plain().WithError(err).Fatal("worker HTTP server failed")
		}
	}()

	prod, err := nsq.NewProducer(cfg.NSQ.NsqdTCPAddr, nsq.NewConfig())
	if err != nil {
		logger.Plain().WithError(err).Fatal("nsq producer creation failed")
	}
	defer prod.Stop()

	st := store.New(pool)
	handler := worker.NewHandler(st,
		&http.Client{Timeout: cfg.Worker.DeliverTimeout},
		worker.Config{
			MaxAttempts:    cfg.Worker.MaxAttempts,
			BackoffBase:    cfg.Worker.BackoffBase,
			JitterPercent:  cfg.Worker.JitterPercent,
			DeliverTimeout: cfg.Worker.DeliverTimeout,
			PublishDLQ:     cfg.Worker.PublishDLQ,
			DLQTopic:       cfg.NSQ.DLQTopic,
		},
		prod,
	)

	consumer, err := nsq.NewConsumer(cfg.NSQ.DeliveriesTopic, cfg.NSQ.WorkerChannel,
		consumerConfig(cfg.Worker.Concurrency, cfg.Worker.MaxAttempts))
	if err != nil {
		logger.Plain().WithError(err).Fatal("nsq consumer creation failed")
	}
	consumer.AddConcurrentHandlers(handler, cfg.Worker.Concurrency)

	// Connecting directly to nsqd forces channel creation instead of the
	// channel being lazily created on first publish.
	if err := consumer.ConnectToNSQD(cfg.NSQ.NsqdTCPAddr); err != nil {
		logger.Plain().WithError(err).Fatal("connect to nsqd failed")
	}
	if err := consumer.ConnectToNSQLookupd(cfg.NSQ.LookupHTTPAddr); err != nil {
		logger.Plain().WithError(err).Fatal("connect to lookupd failed")
	}

	reclaimer := worker.NewReclaimer(st, prod, cfg.NSQ.DeliveriesTopic, cfg.Worker.ProcessingGrace)
	go reclaimer.Run(ctx)

	monitor := worker.NewBacklogMonitor(cfg.NSQ.NsqdTCPAddr, cfg.NSQ.DeliveriesTopic, cfg.NSQ.WorkerChannel)
	go monitor.Run(ctx)

	logger.Plain().Info("worker service started")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	logger.Plain().Info("shutting down worker service")
	cancel()
	consumer.Stop()
	<-consumer.StopChan
	_ = httpSrv.Shutdown(context.Background())
	logger.Plain().Info("worker service stopped")
}

// consumerConfig builds the NSQ consumer configuration. MaxInFlight bounds
// system-wide concurrent jobs; concurrent handlers match it so the bound is
// the actual parallelism. The client-side redelivery cap sits above the
// handler's attempt budget so exhaustion is always decided by the handler,
// never by go-nsq discarding the message first.
func consumerConfig(concurrency, maxAttempts int) *nsq.Config {
	conf := nsq.NewConfig()
	conf.MaxInFlight = concurrency
	conf.MaxAttempts = uint16(maxAttempts) + 2
	return conf
}
