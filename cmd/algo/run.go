package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rxtech-lab/argo-algo/internal/api"
	"github.com/rxtech-lab/argo-algo/internal/config"
	"github.com/rxtech-lab/argo-algo/internal/exchange"
	"github.com/rxtech-lab/argo-algo/internal/exchange/binance"
	"github.com/rxtech-lab/argo-algo/internal/host"
	"github.com/rxtech-lab/argo-algo/internal/logger"
	"github.com/rxtech-lab/argo-algo/internal/storage"
	"github.com/rxtech-lab/argo-algo/internal/strategy"
	"github.com/rxtech-lab/argo-algo/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

const shutdownTimeout = time.Minute

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Connect to the exchange and run the configured algo orders",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "resume",
				Usage: "Resume the algo orders still active in the state store",
			},
		},
		Action: runAction,
	}
}

func loadConfig(cmd *cli.Command) (*config.Config, error) {
	return config.Load(cmd.String("config"), cmd.StringSlice("env")...)
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := cfg.ValidateExchange(); err != nil {
		return err
	}

	log, err := logger.NewLoggerWithLevel(cfg.Log.Level)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to create logger", err)
	}
	defer log.Sync() //nolint:errcheck

	if redacted, err := cfg.Redacted(); err == nil {
		log.Info("configuration loaded", zap.Any("config", redacted))
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider := exchange.ProviderFor(cfg.Exchange)
	log.Info("connecting to exchange", zap.String("provider", string(provider)))

	conn, err := exchange.New(ctx, provider, cfg.Exchange, binance.WithLogger(log))
	if err != nil {
		return err
	}
	defer conn.Close()

	store, err := storage.Open(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		return err
	}

	if store != nil {
		defer store.Close()
	}

	hub := api.NewHub(log, api.DefaultBacklog)
	opts := []host.Option{
		host.WithLogger(log),
		host.WithNotifier(host.MultiNotifier{host.NewLogNotifier(log), hub}),
	}

	if store != nil {
		opts = append(opts, host.WithStateStore(store))
	}

	if cfg.Signals.Enabled {
		writer, err := storage.NewSignalWriter(cfg.Signals.Path)
		if err != nil {
			return err
		}
		defer writer.Close()

		opts = append(opts, host.WithSignalStore(writer))
	}

	h := host.New(cfg.Host, conn, opts...)
	if err := h.Register(strategy.Definitions()...); err != nil {
		return err
	}

	if err := h.Start(ctx); err != nil {
		return err
	}

	if cmd.Bool("resume") {
		if err := resume(ctx, h, log); err != nil {
			return err
		}
	}

	for _, ao := range cfg.Algos {
		gid, err := h.StartAO(ctx, ao.ID, ao.Args)
		if err != nil {
			log.Error("failed to start algo order", zap.String("algo", ao.ID), zap.Error(err))

			continue
		}

		fmt.Fprintf(cmd.Root().Writer, "started %s as %d\n", ao.ID, gid)
	}

	var server *api.Server

	if cfg.API.Enabled {
		server = api.NewServer(h, hub, log)
		if err := server.Start(cfg.API.Listen); err != nil {
			return err
		}
	}

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("failed to stop api server", zap.Error(err))
		}
	}

	return h.Close(shutdownCtx)
}

func resume(ctx context.Context, h *host.Host, log *logger.Logger) error {
	var bar *progressbar.ProgressBar

	resumed, err := h.ResumeWithProgress(ctx, func(done, total int) {
		if total == 0 {
			return
		}

		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription("Resuming algo orders"),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionShowCount(),
			)
		}

		_ = bar.Set(done)
	})
	if err != nil {
		return err
	}

	if bar != nil {
		_ = bar.Finish()
	}

	log.Info("resumed algo orders", zap.Int("count", resumed))

	return nil
}
