// Package reporting turns run outcomes into human readable notices and fans
// them out to the configured delivery sinks.
package reporting

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/renewbot/api/schemas"
)

const deliveryTimeout = 30 * time.Second

// Sink delivers a formatted notice somewhere (a chat, a journal).
type Sink interface {
	Name() string
	Deliver(ctx context.Context, n schemas.Notice) error
}

// Reporter formats outcomes and forwards them to every sink. Delivery is
// best effort: errors are logged and never returned, so callers cannot branch
// on them.
type Reporter struct {
	sinks  []Sink
	logger *zap.Logger
}

// New creates a Reporter. With no sinks every notice is only logged.
func New(logger *zap.Logger, sinks ...Sink) *Reporter {
	return &Reporter{
		sinks:  sinks,
		logger: logger.Named("reporter"),
	}
}

// Report sends the notice for a terminal outcome. record is the resource the
// outcome refers to, if any. The outcome's evidence is always attached.
func (r *Reporter) Report(ctx context.Context, outcome schemas.RunOutcome, record *schemas.ResourceRenewalRecord) {
	n := schemas.Notice{
		Kind:     schemas.NoticeOutcome,
		Text:     FormatOutcome(outcome, record),
		Shot:     outcome.Evidence,
		Outcome:  &outcome,
		Resource: record,
	}
	r.logger.Info("Reporting outcome.",
		zap.String("identifier", outcome.Identifier),
		zap.String("status", string(outcome.Status)),
		zap.Bool("has_evidence", outcome.Evidence != nil),
	)
	r.deliver(ctx, n)
}

// Progress sends an informational notice that is not a terminal outcome.
func (r *Reporter) Progress(ctx context.Context, text string, shot *schemas.Shot) {
	r.deliver(ctx, schemas.Notice{Kind: schemas.NoticeProgress, Text: text, Shot: shot})
}

func (r *Reporter) deliver(ctx context.Context, n schemas.Notice) {
	for _, sink := range r.sinks {
		func() {
			defer func() {
				if p := recover(); p != nil {
					r.logger.Error("Notice sink panicked.", zap.String("sink", sink.Name()), zap.Any("panic", p))
				}
			}()
			sendCtx, cancel := context.WithTimeout(ctx, deliveryTimeout)
			defer cancel()
			if err := sink.Deliver(sendCtx, n); err != nil {
				r.logger.Warn("Notice delivery failed.", zap.String("sink", sink.Name()),
					zap.String("kind", string(n.Kind)), zap.Error(err))
			}
		}()
	}
}
