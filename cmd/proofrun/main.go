// cmd/proofrun/main.go
//
// This is the entry point for the proofrun CLI.
// When you run `proofrun` from any directory, this is what executes.
//
// Flow:
// 1. Initialize the .proofrun folder in the working directory
// 2. Run the configuration dialogue to resolve a run plan
// 3. Obtain an API token and execute the plan action by action

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/proofrun/proofrun/internal/actions"
	"github.com/proofrun/proofrun/internal/config"
	"github.com/proofrun/proofrun/internal/driver"
	"github.com/proofrun/proofrun/internal/logbook"
	"github.com/proofrun/proofrun/internal/orchestrator"
	"github.com/proofrun/proofrun/internal/remote"
	"github.com/proofrun/proofrun/internal/session"
	"github.com/proofrun/proofrun/internal/tui"
	"github.com/proofrun/proofrun/internal/wizard"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "proofrun: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolve working directory: %w", err)
	}

	if err := config.Init(cwd); err != nil {
		return fmt.Errorf("initialize %s directory: %w", config.ProofrunDir, err)
	}
	cfg, err := config.New(cwd)
	if err != nil {
		return err
	}

	lb, err := logbook.New(filepath.Join(cfg.LogsDir(), "journey.log"))
	if err != nil {
		return fmt.Errorf("open logbook: %w", err)
	}
	defer lb.Close()

	store := session.NewStore(cfg.SessionPath())
	prior, hasPrior, err := store.Load()
	if err != nil {
		lb.Warn("Session load failed, starting fresh: %v", err)
	}
	prior, hasPrior = applyEnvOverrides(cfg, prior, hasPrior)

	machine := wizard.New(prior, hasPrior)
	runPlan, err := tui.GatherPlan(machine, store, lb)
	if err != nil {
		if errors.Is(err, tui.ErrInterrupted) {
			lb.Info("Run cancelled before launch")
			return errors.New("cancelled")
		}
		return err
	}
	lb.Info("Plan resolved: %s on %s (%s)", runPlan.Action, runPlan.SchoolID, runPlan.Environment)

	base, ok := cfg.BaseURL(runPlan.Environment)
	if !ok {
		return fmt.Errorf("no api_base_urls entry for environment %q in %s", runPlan.Environment, cfg.ConfigPath())
	}
	baseURLs := map[string]string{runPlan.Environment: base}

	tokens := remote.NewTokenClient(baseURLs, cfg.Env.APIKey)
	ctx := context.Background()
	if err := tokens.Preflight(ctx, runPlan.Environment, runPlan.SchoolID); err != nil {
		lb.Error("School preflight failed: %v", err)
		return err
	}

	poller := remote.NewMergeClient(baseURLs, cfg.Env.APIKey, lb, cfg.MergePollInterval(), cfg.MergePollDeadline())
	browser := driver.NewClient(cfg.SidecarURL())

	registry := actions.NewRegistry()
	if err := browser.RegisterAll(registry); err != nil {
		return fmt.Errorf("register scenarios: %w", err)
	}

	orch, err := orchestrator.New(
		orchestrator.Collaborators{
			Tokens:  tokens,
			Browser: browser,
			Auth:    browser,
			Nav:     browser,
			Poller:  poller,
		},
		registry,
		cfg.OutputRoot(),
		orchestrator.WithLogbook(lb),
		orchestrator.WithHeadedBrowser(cfg.Headed()),
	)
	if err != nil {
		return err
	}

	if err := orch.Execute(ctx, runPlan); err != nil {
		lb.Error("Run aborted: %v", err)
		return err
	}
	// Report polls are detached; wait so late merge reports still land on
	// disk before the process exits.
	poller.Wait()
	lb.Info("Run finished")
	return nil
}

// applyEnvOverrides folds PROOFRUN_* credentials over the saved session so
// automation can pre-answer the sign-in questions.
func applyEnvOverrides(cfg *config.Config, prior session.Record, hasPrior bool) (session.Record, bool) {
	if cfg.Env.Email != "" {
		prior.Email = cfg.Env.Email
	}
	if cfg.Env.Password != "" {
		prior.Password = cfg.Env.Password
	}
	if cfg.Env.SchoolID != "" {
		prior.SchoolID = cfg.Env.SchoolID
	}
	if prior.Environment == "" {
		prior.Environment = cfg.File.Environment
	}
	if prior != (session.Record{}) {
		hasPrior = true
	}
	return prior, hasPrior
}
