// Command flipradar serves the arbitrage opportunity API and, optionally,
// processes scan jobs in the same process.
//
// Usage: flipradar [-config flipradar.yaml] [-role api|worker|all] [-dev] [-demo]
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/raysh454/flipradar/internal/app"
	"github.com/raysh454/flipradar/internal/cli"
	"github.com/raysh454/flipradar/internal/interfaces"
	"github.com/raysh454/flipradar/internal/logging"
	"github.com/raysh454/flipradar/internal/notify"
	"github.com/raysh454/flipradar/internal/queue"
	"github.com/raysh454/flipradar/internal/scheduler"
	"github.com/raysh454/flipradar/internal/server"
	"github.com/raysh454/flipradar/internal/store"
	"github.com/raysh454/flipradar/internal/worker"
)

func main() {
	args, err := cli.ParseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "flipradar: %v\n", err)
		os.Exit(2)
	}

	cfg, err := app.LoadConfig(args.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "flipradar: config: %v\n", err)
		os.Exit(2)
	}
	if args.Dev {
		cfg.Log = logging.Config{Level: "debug", Format: "console"}
	}
	logger := logging.New(cfg.Log).With(logging.F("service", app.ServiceName), logging.F("role", args.Role))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, args, cfg, logger); err != nil {
		logger.Error("fatal", logging.Err(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, args *cli.CLIArgs, cfg *app.Config, logger logging.Logger) error {
	if args.Role == cli.RoleWorker {
		if err := cfg.ValidateStandaloneWorker(); err != nil {
			return fmt.Errorf("-role worker: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	st, err := store.Open(ctx, cfg.Store, logger)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	hub := notify.NewHub(cfg.Server.EventBuffer, logger)
	defer hub.Close()

	// ---- Queue + event publishing ----
	var (
		jobs interfaces.JobQueue
		rdb  *redis.Client
		pub  interfaces.EventPublisher = hub
	)
	queueOpts := []queue.Option{
		queue.WithLogger(logger),
		queue.WithMaxPending(cfg.Queue.MaxPending),
		queue.WithRetention(cfg.Queue.Retention),
	}
	switch cfg.Queue.Backend {
	case "redis":
		rdb, err = queue.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			return err
		}
		if !args.RunsAPI() {
			// No local subscribers; API processes pick events up through the bridge.
			pub = notify.NewRedisPublisher(rdb, cfg.Redis.EventsChannel)
		}
		queueOpts = append(queueOpts, queue.WithPublisher(pub))
		jobs = queue.NewRedisQueue(rdb, cfg.Redis.Prefix, queueOpts...)
	default:
		queueOpts = append(queueOpts, queue.WithPublisher(pub))
		jobs = queue.NewMemoryQueue(queueOpts...)
	}
	defer jobs.Close()

	submitter := queue.NewRetrying(jobs, cfg.Queue.SubmitRetries, cfg.Queue.RetryBackoff, logger)
	svc := app.NewService(cfg, st, submitter, pub, logger)

	var wg sync.WaitGroup
	goRun := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error(name+" stopped", logging.Err(err))
			}
		}()
	}

	// ---- Reaper ----
	reaper := worker.NewReaper(jobs, cfg.Queue.JobTimeout, cfg.Queue.ReapInterval, logger)
	goRun("reaper", reaper.Run)

	// ---- Worker ----
	if args.RunsWorker() && args.Demo && cfg.Worker.Enabled {
		scanner := worker.NewDemoScanner(cfg.Scan.Categories, cfg.Scan.Marketplaces, cfg.Fees.DefaultRate)
		runner := worker.NewRunner(worker.RunnerConfig{
			PollInterval: cfg.Worker.PollInterval,
			JobTimeout:   cfg.Queue.JobTimeout,
		}, jobs, scanner, svc, logger)
		pool := worker.NewPool(cfg.Worker.Concurrency, logger)
		pool.Start(ctx)
		defer pool.Stop()
		goRun("worker", func(ctx context.Context) error { return runner.Run(ctx, pool) })
	} else if args.RunsWorker() {
		logger.Warn("no scanner configured; scan jobs wait for an external worker")
	}

	if !args.RunsAPI() {
		<-ctx.Done()
		logger.Info("shutdown requested")
		wg.Wait()
		return nil
	}

	// ---- Event bridge ----
	if rdb != nil {
		bridge := notify.NewRedisBridge(rdb, cfg.Redis.EventsChannel, hub, logger)
		goRun("event bridge", bridge.Run)
	}

	// ---- Scheduler ----
	if cfg.Scan.Schedule != "" {
		sched := scheduler.New(cfg.Scan.Schedule, cfg.Scan.Categories, svc, logger)
		if err := sched.Start(ctx, true); err != nil {
			return err
		}
		defer sched.Stop()
		svc.SetSchedule(sched.Next)
	}

	// ---- HTTP ----
	srv := server.NewServer(server.Config{
		ListenAddr:  cfg.Server.ListenAddr,
		ReadTimeout: cfg.Server.ReadTimeout,
		Metrics:     cfg.Metrics.Enabled,
		Logger:      logger,
	}, svc, hub)
	httpSrv := srv.HTTPServer()

	errc := make(chan error, 1)
	go func() {
		logger.Info("http listening", logging.F("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	// ---- Graceful shutdown ----
	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errc:
		if err != nil {
			serveErr = fmt.Errorf("http server: %w", err)
		}
	}
	cancel()

	sctx, done := context.WithTimeout(context.Background(), cfg.Server.ShutdownWait)
	defer done()
	// Close WebSocket subscribers first; Shutdown does not wait for hijacked connections.
	hub.Close()
	if err := httpSrv.Shutdown(sctx); err != nil {
		logger.Warn("http shutdown", logging.Err(err))
	}
	wg.Wait()
	return serveErr
}
