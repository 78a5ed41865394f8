package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/dlps55195/x-bot-worker/internal/browser"
	"github.com/dlps55195/x-bot-worker/internal/config"
	"github.com/dlps55195/x-bot-worker/internal/generator"
	"github.com/dlps55195/x-bot-worker/internal/interact"
	"github.com/dlps55195/x-bot-worker/internal/logging"
	"github.com/dlps55195/x-bot-worker/internal/pacing"
	"github.com/dlps55195/x-bot-worker/internal/profiles"
	"github.com/dlps55195/x-bot-worker/internal/scanner"
	"github.com/dlps55195/x-bot-worker/internal/seen"
	"github.com/dlps55195/x-bot-worker/internal/session"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	runEvery    time.Duration
	runNoPacing bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one reply pass over every active profile",
	Long: `Visits each active profile's target lists in order and replies to at most
session.per_list_cap unseen top-level posts per list.

The exit code is non-zero only when the worker cannot start: invalid
configuration, an unreadable profile store, or a browser that fails to
launch. Failures inside a pass are reported in the summary.`,
	RunE: runPasses,
}

func init() {
	runCmd.Flags().DurationVar(&runEvery, "every", 0, "Repeat the pass at this interval until interrupted (0 runs once)")
	runCmd.Flags().BoolVar(&runNoPacing, "no-pacing", false, "Skip the delay between verified replies")
}

// worker owns the long-lived collaborators of a pass.
type worker struct {
	orch    *session.Orchestrator
	engine  *browser.RodEngine
	store   seen.Store
	profile profiles.Source
}

func (w *worker) Close() error {
	return errors.Join(w.engine.Close(), w.store.Close(), profiles.Close(w.profile))
}

// newWorker wires every collaborator from cfg.
func newWorker(cfg *config.Config) (*worker, error) {
	src, err := profiles.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("profile store: %w", err)
	}
	store, err := seen.Open(cfg)
	if err != nil {
		_ = profiles.Close(src)
		return nil, fmt.Errorf("seen store: %w", err)
	}
	gen, err := generator.New(cfg)
	if err != nil {
		_ = store.Close()
		_ = profiles.Close(src)
		return nil, fmt.Errorf("generator: %w", err)
	}

	var pace pacing.Policy = pacing.BetweenReplies(cfg)
	if runNoPacing {
		pace = pacing.NoOp{}
	}

	engine := browser.NewRodEngine(cfg)
	orch, err := session.New(session.Deps{
		Profiles:  src,
		Engine:    engine,
		Seen:      store,
		Scanner:   scanner.New(store),
		Generator: gen,
		Submitter: interact.New(interact.OptionsFromConfig(cfg)),
		Pacing:    pace,
	}.Limits(cfg))
	if err != nil {
		_ = store.Close()
		_ = profiles.Close(src)
		return nil, err
	}
	return &worker{orch: orch, engine: engine, store: store, profile: src}, nil
}

func runPasses(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	log := logging.Get(logging.CategoryBoot)

	w, err := newWorker(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := w.Close(); err != nil {
			log.Warn("shutdown", zap.Error(err))
		}
	}()

	ctx := commandContext(cmd)
	// Launch up front so a missing Chrome is a startup error, not a failure
	// of every profile.
	if err := w.engine.Start(ctx); err != nil {
		return fmt.Errorf("browser: %w", err)
	}

	for {
		report := w.orch.Run(ctx)
		fmt.Fprint(cmd.OutOrStdout(), renderSummary(report))
		if report.Err != nil {
			return report.Err
		}
		if runEvery <= 0 || report.Cancelled {
			return nil
		}
		log.Info("next pass scheduled", zap.Duration("in", runEvery))
		if err := pacing.Sleep(ctx, runEvery); err != nil {
			return nil
		}
	}
}
