package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/Mutter0815/quotamailer/internal/campaign"
	"github.com/Mutter0815/quotamailer/internal/recipients"
	"github.com/Mutter0815/quotamailer/internal/store"
	"github.com/Mutter0815/quotamailer/pkg/config"
	"github.com/Mutter0815/quotamailer/pkg/db"
	"github.com/Mutter0815/quotamailer/pkg/logx"
	"github.com/Mutter0815/quotamailer/pkg/mailer"
	"github.com/Mutter0815/quotamailer/pkg/rmq"
	"github.com/Mutter0815/quotamailer/services/dispatcher/engine"
	"github.com/Mutter0815/quotamailer/services/dispatcher/server"
)

const (
	exitOK      = 0
	exitAborted = 1
	exitHalted  = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	logx.Init()
	defer logx.Sync()

	cfg, err := config.Load()
	if err != nil {
		logx.L().Errorw("config_error", "error", err)
		return exitAborted
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logx.L().Errorw("state_store_error", "error", err)
		return exitAborted
	}
	defer closeStore()

	var opts []engine.Option
	if cfg.RMQURL != "" {
		pub, err := rmq.NewPublisher(cfg.RMQURL, cfg.EventsQueue)
		if err != nil {
			logx.L().Errorw("rmq_init_error", "error", err)
			return exitAborted
		}
		defer func() {
			if err := pub.Close(); err != nil {
				logx.L().Warnw("rmq_publisher_close_error", "error", err)
			}
		}()
		opts = append(opts, engine.WithEvents(pub))
	}

	var tr engine.Transport = mailer.NewSMTP(cfg.SMTP, cfg.Accounts)
	if cfg.DryRun {
		logx.L().Infow("dry_run_enabled")
		tr = mailer.DryRun{}
		opts = append(opts, engine.WithDryRun())
	}

	eng := engine.New(engine.Config{
		Accounts:        cfg.Accounts,
		MinDelaySeconds: cfg.MinDelaySeconds,
		MaxDelaySeconds: cfg.MaxDelaySeconds,
	}, st, recipients.NewCSV(cfg.RecipientsFile), tr, opts...)

	g, gctx := errgroup.WithContext(ctx)
	if cfg.StatusAddr != "" {
		srv := server.NewHTTPServer(cfg.StatusAddr, server.NewHandlers(eng))
		g.Go(func() error {
			logx.L().Infow("status_listen_start", "addr", cfg.StatusAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	code := exitOK
	g.Go(func() error {
		defer stop()
		code = runCampaigns(gctx, eng, cfg.Schedule)
		return nil
	})
	serveErr := g.Wait()
	if serveErr != nil {
		logx.L().Errorw("status_server_error", "error", serveErr)
	}
	return finalCode(code, serveErr, eng.Snapshot())
}

type runner interface {
	Run(ctx context.Context) (campaign.Report, error)
}

// runCampaigns performs one run, or one run per tick of schedule until ctx ends.
func runCampaigns(ctx context.Context, eng runner, schedule string) int {
	if schedule == "" {
		_, err := eng.Run(ctx)
		return exitCode(err)
	}

	sched, err := cron.ParseStandard(schedule)
	if err != nil {
		logx.L().Errorw("schedule_invalid", "schedule", schedule, "error", err)
		return exitAborted
	}
	return runScheduled(ctx, eng, sched)
}

// runScheduled stops on errors that a later run would turn into a
// duplicate send or that no later run can recover from.
func runScheduled(ctx context.Context, eng runner, sched cron.Schedule) int {
	for {
		if ctx.Err() != nil {
			logx.L().Infow("scheduler_stopped")
			return exitOK
		}
		next := sched.Next(time.Now())
		logx.L().Infow("next_run_scheduled", "at", next.Format(time.RFC3339))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			logx.L().Infow("scheduler_stopped")
			return exitOK
		case <-timer.C:
		}

		_, err := eng.Run(ctx)
		switch {
		case errors.Is(err, engine.ErrConfig):
			return exitAborted
		case errors.Is(err, engine.ErrRecord):
			logx.L().Errorw("scheduler_halted", "error", err)
			return exitHalted
		case err != nil && !errors.Is(err, context.Canceled):
			logx.L().Errorw("run_error", "error", err)
		}
	}
}

// finalCode turns a status server failure into an abort when no mail went out.
func finalCode(code int, serveErr error, rep campaign.Report) int {
	if serveErr == nil || code != exitOK || rep.TotalSent() > 0 {
		return code
	}
	return exitAborted
}

func exitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return exitOK
	case errors.Is(err, engine.ErrRecord):
		return exitHalted
	default:
		return exitAborted
	}
}

func openStore(ctx context.Context, cfg config.Dispatcher) (engine.StateStore, func(), error) {
	if cfg.DBDSN == "" {
		return store.NewFile(cfg.SentLogFile, cfg.UnsubscribeFile), func() {}, nil
	}

	sqlDB, err := db.Open(cfg.DBDSN)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() { closeQuietly(sqlDB) }

	migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.Migrate(migrateCtx, sqlDB); err != nil {
		closeDB()
		return nil, nil, err
	}
	return store.NewSQL(sqlDB), closeDB, nil
}

func closeQuietly(sqlDB *sql.DB) {
	if err := sqlDB.Close(); err != nil {
		logx.L().Warnw("db_close_error", "error", err)
	} else {
		logx.L().Infow("db_closed")
	}
}
