package cmd

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/renewbot/api/schemas"
	"github.com/xkilldash9x/renewbot/internal/browser"
	"github.com/xkilldash9x/renewbot/internal/browser/stealth"
	"github.com/xkilldash9x/renewbot/internal/challenge"
	"github.com/xkilldash9x/renewbot/internal/classify"
	"github.com/xkilldash9x/renewbot/internal/config"
	"github.com/xkilldash9x/renewbot/internal/evidence"
	"github.com/xkilldash9x/renewbot/internal/network"
	"github.com/xkilldash9x/renewbot/internal/notify"
	"github.com/xkilldash9x/renewbot/internal/observability"
	"github.com/xkilldash9x/renewbot/internal/orchestrator"
	"github.com/xkilldash9x/renewbot/internal/reporting"
	"github.com/xkilldash9x/renewbot/internal/store"
	"github.com/xkilldash9x/renewbot/internal/timing"
)

// runOptions are the flags of `renewbot run` that do not map to configuration.
type runOptions struct {
	format string
	output string
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Log in as every configured user and renew their servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			return runRenewal(ctx, cfg, opts, observability.GetLogger())
		},
	}

	runCmd.Flags().Bool("headless", true, "Run the browser without a window")
	runCmd.Flags().String("remote-url", "", "Attach to a running browser at this DevTools URL instead of launching one")
	runCmd.Flags().String("evidence-dir", "", "Directory for checkpoint screenshots")
	runCmd.Flags().String("users-file", "", "JSON file with the user credentials")
	runCmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Run summary format (text, json)")
	runCmd.Flags().StringVarP(&opts.output, "output", "o", "", "Write the run summary to this file instead of stdout")
	return runCmd
}

// runRenewal wires every component and processes all users. It only returns an
// error for startup failures; individual user outcomes never fail the run.
func runRenewal(ctx context.Context, cfg *config.Config, opts *runOptions, logger *zap.Logger) error {
	creds, err := cfg.Users.LoadCredentials()
	if err != nil {
		if errors.Is(err, config.ErrNoCredentials) {
			logger.Error("No user credentials found, set USERS_JSON or --users-file.")
		}
		return err
	}
	logger.Info("Loaded user credentials.", zap.Int("count", len(creds)))

	summary, err := reporting.NewSummaryWriter(opts.format, opts.output)
	if err != nil {
		return err
	}
	defer summary.Close()

	g, gctx := errgroup.WithContext(ctx)
	proxyCtx, stopProxy := context.WithCancel(gctx)
	defer stopProxy()

	proxyServer := ""
	if cfg.Network.Proxy.Enabled {
		fwd, err := network.NewForwarder(cfg.Network.Proxy, cfg.Network.Timeout, logger)
		if err != nil {
			return fmt.Errorf("failed to configure proxy: %w", err)
		}
		if proxyServer, err = fwd.Listen(); err != nil {
			return err
		}
		g.Go(func() error { return fwd.Serve(proxyCtx) })
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	hook := stealth.NewHookOptions(cfg.Challenge, rng)

	var outcomes []schemas.RunOutcome
	g.Go(func() error {
		defer stopProxy()

		mgr, err := browser.NewManager(gctx, cfg, proxyServer, hook, logger)
		if err != nil {
			return fmt.Errorf("failed to start browser: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := mgr.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Browser shutdown incomplete.", zap.Error(err))
			}
		}()

		sinks, closeSinks := buildSinks(gctx, cfg, logger)
		defer closeSinks()

		recorder, err := evidence.NewRecorder(cfg.Evidence, logger)
		if err != nil {
			return err
		}

		orch, err := orchestrator.New(cfg, orchestrator.Dependencies{
			Pages:      mgr,
			Classifier: classify.New(cfg.Classifier, cfg.Timings.ProbeTimeout, logger),
			Solver:     challenge.NewSolver(cfg.Challenge, cfg.Browser.Humanoid, timing.Real{}, logger, rng),
			Evidence:   recorder,
			Reporter:   reporting.New(logger, sinks...),
			Sleeper:    timing.Real{},
		}, uuid.NewString(), logger)
		if err != nil {
			return err
		}

		outcomes = orch.Run(gctx, creds)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	if err := summary.Write(outcomes); err != nil {
		logger.Warn("Failed to write run summary.", zap.Error(err))
	}
	return ctx.Err()
}

// buildSinks creates every configured notice sink. A sink that cannot be
// created is skipped with a warning; the run continues without it.
func buildSinks(ctx context.Context, cfg *config.Config, logger *zap.Logger) ([]reporting.Sink, func()) {
	var sinks []reporting.Sink
	closers := []func(){}

	if cfg.Notify.Telegram.Enabled() {
		tg, err := notify.NewTelegram(cfg.Notify.Telegram, logger)
		if err != nil {
			logger.Warn("Telegram notifications disabled.", zap.Error(err))
		} else {
			sinks = append(sinks, tg)
		}
	} else {
		logger.Info("Telegram is not configured, notices are only logged.")
	}

	if cfg.Database.URL != "" {
		journal, closeJournal, err := store.Connect(ctx, cfg.Database, logger)
		if err != nil {
			logger.Warn("Outcome journal disabled.", zap.Error(err))
		} else {
			sinks = append(sinks, journal)
			closers = append(closers, closeJournal)
		}
	}

	return sinks, func() {
		for _, c := range closers {
			c()
		}
	}
}
