// File: internal/orchestrator/orchestrator.go
// Description: Drives one browser tab through the login and renewal flow for
// each configured credential. Every collaborator is injected as an interface.

package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/renewbot/api/schemas"
	"github.com/xkilldash9x/renewbot/internal/classify"
	"github.com/xkilldash9x/renewbot/internal/config"
	"github.com/xkilldash9x/renewbot/internal/timing"
)

// PageProvider hands out the active tab, replacing it if it stopped responding.
type PageProvider interface {
	ActivePage(ctx context.Context) (schemas.Page, error)
}

// LoginClassifier judges the page reached after submitting credentials.
type LoginClassifier interface {
	ClassifyLogin(ctx context.Context, probe classify.ElementProbe, pageText, pageURL string) schemas.LoginCheck
}

// ChallengeSolver attempts the interactive challenge on the page.
type ChallengeSolver interface {
	Solve(ctx context.Context, page schemas.ChallengePage, label string) schemas.ChallengeResult
}

// EvidenceRecorder captures checkpoint screenshots. It never fails.
type EvidenceRecorder interface {
	Capture(ctx context.Context, page schemas.Screenshotter, identifier, label string) *schemas.Shot
}

// Reporter delivers notices. It never fails.
type Reporter interface {
	Report(ctx context.Context, outcome schemas.RunOutcome, record *schemas.ResourceRenewalRecord)
	Progress(ctx context.Context, text string, shot *schemas.Shot)
}

// Dependencies groups the collaborators of an Orchestrator.
type Dependencies struct {
	Pages      PageProvider
	Classifier LoginClassifier
	Solver     ChallengeSolver
	Evidence   EvidenceRecorder
	Reporter   Reporter
	Sleeper    timing.Sleeper
}

// Orchestrator processes credentials strictly one after another on a single tab.
type Orchestrator struct {
	cfg    *config.Config
	deps   Dependencies
	logger *zap.Logger
	runID  string
	now    func() time.Time
}

// New creates an Orchestrator. runID tags every outcome of this run.
func New(cfg *config.Config, deps Dependencies, runID string, logger *zap.Logger) (*Orchestrator, error) {
	if cfg == nil ||
		logger == nil ||
		deps.Pages == nil ||
		deps.Classifier == nil ||
		deps.Solver == nil ||
		deps.Evidence == nil ||
		deps.Reporter == nil ||
		deps.Sleeper == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	return &Orchestrator{
		cfg:    cfg,
		deps:   deps,
		logger: logger.Named("orchestrator"),
		runID:  runID,
		now:    time.Now,
	}, nil
}

// Run processes every credential in order and returns one outcome per user.
// A failing user never stops the run; only cancellation of ctx does.
func (o *Orchestrator) Run(ctx context.Context, creds []schemas.Credential) []schemas.RunOutcome {
	o.logger.Info("Starting run.", zap.String("run_id", o.runID), zap.Int("users", len(creds)))
	outcomes := make([]schemas.RunOutcome, 0, len(creds))
	for i, cred := range creds {
		if ctx.Err() != nil {
			o.logger.Warn("Run cancelled, skipping remaining users.", zap.Int("remaining", len(creds)-i))
			break
		}
		o.logger.Info("Processing user.", zap.Int("index", i+1), zap.Int("total", len(creds)),
			zap.String("identifier", cred.Identifier))
		outcome := o.ProcessUser(ctx, cred)
		o.logger.Info("User finished.", zap.String("identifier", cred.Identifier),
			zap.String("status", string(outcome.Status)))
		outcomes = append(outcomes, outcome)
	}
	o.logger.Info("All users processed.", zap.Int("processed", len(outcomes)))
	return outcomes
}

// ProcessUser runs the full flow for one credential. Errors and panics are
// converted into an error outcome here, at the per-user boundary.
func (o *Orchestrator) ProcessUser(ctx context.Context, cred schemas.Credential) schemas.RunOutcome {
	outcome := schemas.RunOutcome{
		RunID:      o.runID,
		Identifier: cred.Identifier,
		Status:     schemas.StatusUnknown,
		StartedAt:  o.now(),
	}
	logger := o.logger.With(zap.String("identifier", cred.Identifier))

	page, err := o.deps.Pages.ActivePage(ctx)
	if err != nil {
		logger.Error("No usable browser tab.", zap.Error(err))
		outcome.Status = schemas.StatusError
		outcome.Message = err.Error()
		o.deps.Reporter.Report(ctx, outcome, nil)
		outcome.FinishedAt = o.now()
		return outcome
	}

	u := &userRun{
		o:       o,
		page:    page,
		cred:    cred,
		logger:  logger,
		outcome: &outcome,
	}
	func() {
		defer func() {
			if p := recover(); p != nil {
				logger.Error("Recovered from panic while processing user.", zap.Any("panic", p), zap.Stack("stack"))
				u.fail(ctx, fmt.Errorf("panic: %v", p))
			}
		}()
		if err := u.run(ctx); err != nil {
			u.fail(ctx, err)
		}
	}()

	o.deps.Evidence.Capture(ctx, page, cred.Identifier, "final_"+string(outcome.Status))
	outcome.FinishedAt = o.now()
	return outcome
}
