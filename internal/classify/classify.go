// Package classify decides what state the dashboard is in after a login attempt.
// The rules are ordered by specificity: explicit block, explicit error, explicit
// success, weak signal, unknown. The order is significant on ambiguous pages.
package classify

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/renewbot/api/schemas"
	"github.com/xkilldash9x/renewbot/internal/config"
)

const (
	msgAccessBlocked = "access blocked: VPN/proxy detected"
	msgStillOnLogin  = "still on login page"
	msgUnknown       = "unable to determine login state"
)

// ElementProbe answers visibility questions about the live page.
type ElementProbe interface {
	VisibleText(ctx context.Context, selector string, timeout time.Duration) (string, bool, error)
}

// Classifier applies the login heuristics.
type Classifier struct {
	cfg          config.ClassifierConfig
	probeTimeout time.Duration
	logger       *zap.Logger
}

// New creates a Classifier. probeTimeout bounds every visibility probe.
func New(cfg config.ClassifierConfig, probeTimeout time.Duration, logger *zap.Logger) *Classifier {
	return &Classifier{cfg: cfg, probeTimeout: probeTimeout, logger: logger.Named("classifier")}
}

// ClassifyLogin inspects the rendered text and URL of the page reached after
// submitting credentials. Probe failures are treated as "not visible".
func (c *Classifier) ClassifyLogin(ctx context.Context, probe ElementProbe, pageText, pageURL string) schemas.LoginCheck {
	text := strings.ToLower(pageText)
	u := strings.ToLower(pageURL)

	if term, ok := containsAny(text, c.cfg.BlockList); ok {
		c.logger.Debug("Block-list term present.", zap.String("term", term))
		return schemas.LoginCheck{Reason: schemas.LoginAccessBlocked, Message: msgAccessBlocked}
	}

	if _, ok := containsAny(u, c.cfg.LoginRouteMarkers); ok {
		for _, sel := range c.cfg.ErrorSelectors {
			msg, visible, err := probe.VisibleText(ctx, sel, c.probeTimeout)
			if err != nil {
				c.logger.Debug("Error selector probe failed.", zap.String("selector", sel), zap.Error(err))
				continue
			}
			if visible && strings.TrimSpace(msg) != "" {
				return schemas.LoginCheck{Reason: schemas.LoginError, Message: strings.TrimSpace(msg)}
			}
		}
		return schemas.LoginCheck{Reason: schemas.LoginStillOnLoginPage, Message: msgStillOnLogin}
	}

	for _, indicator := range c.cfg.SuccessIndicators {
		needle := strings.ToLower(indicator)
		if needle == "" {
			continue
		}
		if strings.Contains(text, needle) || strings.Contains(u, needle) {
			return schemas.LoginCheck{Success: true}
		}
	}

	if c.cfg.AccountSelector != "" {
		_, visible, err := probe.VisibleText(ctx, c.cfg.AccountSelector, c.probeTimeout)
		if err == nil && visible {
			return schemas.LoginCheck{Success: true}
		}
	}

	return schemas.LoginCheck{Reason: schemas.LoginUnknown, Message: msgUnknown}
}

func containsAny(haystack string, needles []string) (string, bool) {
	for _, n := range needles {
		n = strings.ToLower(n)
		if n != "" && strings.Contains(haystack, n) {
			return n, true
		}
	}
	return "", false
}
