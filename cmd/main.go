package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/simbot/internal/adapters/apiclient"
	"github.com/okian/simbot/internal/adapters/battlenet"
	"github.com/okian/simbot/internal/adapters/http/api"
	"github.com/okian/simbot/internal/adapters/http/swagger"
	httpworker "github.com/okian/simbot/internal/adapters/http/worker"
	"github.com/okian/simbot/internal/adapters/repository"
	"github.com/okian/simbot/internal/adapters/simc"
	"github.com/okian/simbot/internal/adapters/warcraftlogs"
	app "github.com/okian/simbot/internal/app"
	"github.com/okian/simbot/internal/config"
	"github.com/okian/simbot/internal/domain/progress"
	"github.com/okian/simbot/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

var errRunFailed = errors.New("run failed")

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdout); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, out io.Writer) error {
	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// log to stderr so run mode keeps stdout for the report
	if err := logger.InitWithFormat(cfg.LogFormat, os.Stderr); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	runner, err := newRunner(ctx, cfg, log)
	if err != nil {
		return err
	}

	opts := []app.Option{app.WithLogger(log.Named("service"))}
	if runner != nil {
		opts = append(opts, app.WithRunner(runner))
	}
	if cfg.NATSURL != "" {
		upstream, err := progress.ConnectNATS(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			return err
		}
		defer func() { _ = upstream.Close() }()
		opts = append(opts, app.WithUpstream(upstream))
		log.Info(ctx, "publishing progress to nats", logger.String("url", cfg.NATSURL), logger.String("subject", cfg.NATSSubject))
	}

	roster, logs := newClients(cfg, log)
	svc := app.New(cfg, roster, logs, opts...)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}
	defer svc.Stop()

	if cfg.Mode == config.ModeRun {
		return runOnce(ctx, svc, out)
	}
	// an interface holding a nil *simc.Runner is not nil
	var sim httpworker.Simulator
	if runner != nil {
		sim = runner
	}
	return serve(ctx, cfg, svc, sim)
}

// newRunner finds the simulator. Only the local scheduler requires one; with
// the remote scheduler a missing simulator just disables /simulate.
func newRunner(ctx context.Context, cfg *config.Config, log logger.Logger) (*simc.Runner, error) {
	runner, err := simc.New(cfg.SimcPath, simc.WithStderr(cfg.SimStderr), simc.WithLogger(log.Named("simc")))
	if err == nil {
		return runner, nil
	}
	if cfg.Scheduler == config.SchedulerLocal {
		return nil, fmt.Errorf("local scheduler: %w", err)
	}
	log.Warn(ctx, "simulator unavailable", logger.Error(err))
	return nil, nil
}

// newClients builds the Battle.net and WarcraftLogs clients with their advisory quotas.
func newClients(cfg *config.Config, log logger.Logger) (*battlenet.Client, *warcraftlogs.Client) {
	timeout := time.Duration(cfg.HTTPTimeoutSec) * time.Second

	bnetLog := log.Named("battlenet")
	bnet := battlenet.New(cfg.BattlenetKey,
		battlenet.WithBaseURL(cfg.BattlenetURL),
		battlenet.WithLogger(bnetLog),
		battlenet.WithAPIClient(apiclient.NewClient("battlenet",
			apiclient.WithTimeout(timeout),
			apiclient.WithQuota(apiclient.Quota{PerSecond: cfg.BnetMaxCallsSec, PerHour: cfg.BnetMaxCallsHr}),
			apiclient.WithLogger(bnetLog),
		)),
	)

	wclLog := log.Named("warcraftlogs")
	wcl := warcraftlogs.New(cfg.WarcraftlogsKey,
		warcraftlogs.WithBaseURL(cfg.WarcraftlogsURL),
		warcraftlogs.WithLogger(wclLog),
		warcraftlogs.WithAPIClient(apiclient.NewClient("warcraftlogs",
			apiclient.WithTimeout(timeout),
			apiclient.WithQuota(apiclient.Quota{PerSecond: cfg.WCLMaxCallsSec, PerHour: cfg.WCLMaxCallsHr}),
			apiclient.WithLogger(wclLog),
		)),
	)
	return bnet, wcl
}

// runOnce evaluates the configured guild and writes the report as JSON.
// Cancelling ctx cancels the run; the partial report is still written.
func runOnce(ctx context.Context, svc *app.Service, out io.Writer) error {
	rec, err := svc.StartRun(ctx, app.RunRequest{})
	if err != nil {
		return err
	}
	events, unsubscribe, err := svc.Subscribe(ctx, rec.ID)
	if err != nil {
		return err
	}
	defer unsubscribe()

	done := ctx.Done()
	for open := true; open; {
		select {
		case _, open = <-events:
		case <-done:
			_ = svc.Cancel(context.Background(), rec.ID)
			done = nil
		}
	}

	// the subscription closes just before the record is marked finished
	for !rec.Status.Finished() {
		if rec, err = svc.GetRun(context.Background(), rec.ID); err != nil {
			return err
		}
		if !rec.Status.Finished() {
			time.Sleep(10 * time.Millisecond)
		}
	}
	if rec.Status == repository.StatusFailed {
		return fmt.Errorf("%w: %s", errRunFailed, rec.Error)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(rec.Report)
}

// newMux mounts the API, its docs and, when a simulator is present, the /simulate worker endpoint.
func newMux(ctx context.Context, cfg *config.Config, svc *app.Service, sim httpworker.Simulator) *http.ServeMux {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, svc).Register(ctx, mux)
	if sim != nil {
		h := httpworker.NewHandler(sim,
			httpworker.WithTimeout(time.Duration(cfg.SimTimeoutSec)*time.Second),
			httpworker.WithFightProfile(cfg.DefaultFightProfile),
			httpworker.WithLogger(logger.GetOrNop().Named("simulate")),
		)
		mux.HandleFunc("/simulate", api.MetricsMiddleware(h.HandleSimulate, "simulate"))
	}
	return mux
}

func serve(ctx context.Context, cfg *config.Config, svc *app.Service, sim httpworker.Simulator) error {
	log := logger.Get()

	// no write timeout: event streams stay open for the whole run
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(ctx, cfg, svc, sim),
		ReadTimeout:       readTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr), logger.Bool("simulate_endpoint", sim != nil))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}
