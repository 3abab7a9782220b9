package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/renewbot/api/schemas"
	"github.com/xkilldash9x/renewbot/internal/reporting"
)

const (
	identifierSelector = `input[type="text"], input[type="email"]`
	secretSelector     = `input[type="password"]`
	resourceTitle      = `h3, h4, .title, [class*="name"]`
	resourceCardDepth  = 3
	renewPanelTag      = "div"
)

var (
	submitIdentifierRole = schemas.Role{Kind: "button", Name: "登录|Login|Sign in"}
	submitSecretRole     = schemas.Role{Kind: "button", Name: "继续|Continue"}
	overviewLinkRole     = schemas.Role{Kind: "link", Name: "Servers Overview"}
	overviewButtonRole   = schemas.Role{Kind: "button", Name: "Servers Overview"}
	manageRole           = schemas.Role{Kind: "button", Name: "Manage Server"}
	renewRole            = schemas.Role{Kind: "button", Name: "Renew Server"}
	closeModalRole       = schemas.Role{Kind: "button", Name: "Cancel|Close|×"}

	renewPanelNeedles = []string{"Renew", "Server last renewed"}

	lastRenewedPattern = regexp.MustCompile(`(?i)Server last renewed:\s*(.+)`)
	expiryPattern      = regexp.MustCompile(`(?i)Expiry.*?:(.+)`)
)

// errLoginFailed ends a user's flow after the login outcome was reported.
var errLoginFailed = errors.New("login failed")

// ParseRenewalState extracts the "last renewed" and "expiry" values from the
// renew panel text. Fields that are absent come back as schemas.UnknownField.
func ParseRenewalState(text string) schemas.RenewalState {
	state := schemas.RenewalState{LastRenewed: schemas.UnknownField, Expiry: schemas.UnknownField}
	if m := lastRenewedPattern.FindStringSubmatch(text); m != nil {
		state.LastRenewed = strings.TrimSpace(m[1])
	}
	if m := expiryPattern.FindStringSubmatch(text); m != nil {
		state.Expiry = strings.TrimSpace(m[1])
	}
	return state
}

// userRun carries the state of one user's pass through the flow.
type userRun struct {
	o       *Orchestrator
	page    schemas.Page
	cred    schemas.Credential
	logger  *zap.Logger
	outcome *schemas.RunOutcome

	overviewShot *schemas.Shot
	renewed      bool
}

func (u *userRun) run(ctx context.Context) error {
	if err := u.login(ctx); err != nil {
		if errors.Is(err, errLoginFailed) {
			return nil
		}
		return err
	}
	return u.renewAll(ctx)
}

func (u *userRun) shot(ctx context.Context, label string) *schemas.Shot {
	return u.o.deps.Evidence.Capture(ctx, u.page, u.cred.Identifier, label)
}

func (u *userRun) sleep(ctx context.Context, d time.Duration) error {
	return u.o.deps.Sleeper.Sleep(ctx, d)
}

// finish sets the terminal status of the user and reports it.
func (u *userRun) finish(ctx context.Context, status schemas.Status, message string, shot *schemas.Shot, record *schemas.ResourceRenewalRecord) {
	u.outcome.Status = status
	u.outcome.Message = message
	u.outcome.Evidence = shot
	u.o.deps.Reporter.Report(ctx, *u.outcome, record)
}

func (u *userRun) fail(ctx context.Context, err error) {
	u.logger.Error("Error while processing user.", zap.Error(err))
	u.finish(ctx, schemas.StatusError, err.Error(), u.shot(ctx, "error"), nil)
}

func (u *userRun) login(ctx context.Context) error {
	t := u.o.cfg.Timings
	u.logger.Info("Navigating to login page.")
	if err := u.page.Navigate(ctx, u.o.cfg.Target.LoginURL); err != nil {
		return fmt.Errorf("failed to open login page: %w", err)
	}
	if err := u.sleep(ctx, t.LoginPageSettle); err != nil {
		return err
	}
	u.o.deps.Reporter.Progress(ctx, reporting.StartedText(u.cred.Identifier), u.shot(ctx, "01_login_init"))

	if err := u.page.Fill(ctx, identifierSelector, u.cred.Identifier, t.FieldVisible); err != nil {
		return fmt.Errorf("failed to enter identifier: %w", err)
	}
	if err := u.sleep(ctx, t.FieldSettle); err != nil {
		return err
	}
	u.shot(ctx, "02_email_filled")

	if err := u.click(ctx, submitIdentifierRole); err != nil {
		return fmt.Errorf("failed to submit identifier: %w", err)
	}
	if err := u.sleep(ctx, t.IdentifierSubmit); err != nil {
		return err
	}
	u.shot(ctx, "03_password_page")

	if err := u.page.Fill(ctx, secretSelector, u.cred.Secret, t.FieldVisible); err != nil {
		return fmt.Errorf("failed to enter secret: %w", err)
	}
	if err := u.sleep(ctx, t.FieldSettle); err != nil {
		return err
	}
	u.shot(ctx, "04_pwd_filled")

	if err := u.click(ctx, submitSecretRole); err != nil {
		return fmt.Errorf("failed to submit secret: %w", err)
	}
	if err := u.sleep(ctx, t.LoginSubmit); err != nil {
		return err
	}
	afterLogin := u.shot(ctx, "05_after_login")

	text, err := u.page.Text(ctx)
	if err != nil {
		u.logger.Debug("Could not read page text.", zap.Error(err))
	}
	url, err := u.page.URL(ctx)
	if err != nil {
		return fmt.Errorf("failed to read current URL: %w", err)
	}
	check := u.o.deps.Classifier.ClassifyLogin(ctx, u.page, text, url)
	if !check.Success {
		u.logger.Warn("Login failed.", zap.String("reason", string(check.Reason)), zap.String("message", check.Message))
		u.finish(ctx, schemas.StatusLoginFailed, check.Message, afterLogin, nil)
		return errLoginFailed
	}

	u.logger.Info("Logged in.", zap.String("url", url))
	u.o.deps.Reporter.Progress(ctx, reporting.LoginSucceededText(u.cred.Identifier, url), afterLogin)
	return nil
}

// click waits for the control like an auto-waiting driver would, then clicks the first match.
func (u *userRun) click(ctx context.Context, role schemas.Role) error {
	if err := u.page.WaitRole(ctx, role, u.o.cfg.Browser.ActionTimeout); err != nil {
		return err
	}
	return u.page.ClickRole(ctx, role, 0)
}

func (u *userRun) openOverview(ctx context.Context) error {
	if err := u.click(ctx, overviewLinkRole); err != nil {
		u.logger.Debug("Overview link not found, trying a button.", zap.Error(err))
		if err := u.click(ctx, overviewButtonRole); err != nil {
			return fmt.Errorf("failed to open servers overview: %w", err)
		}
	}
	return nil
}

func (u *userRun) renewAll(ctx context.Context) error {
	t := u.o.cfg.Timings
	if err := u.openOverview(ctx); err != nil {
		return err
	}
	if err := u.sleep(ctx, t.OverviewSettle); err != nil {
		return err
	}
	u.overviewShot = u.shot(ctx, "06_servers_overview")

	total, err := u.page.CountRole(ctx, manageRole)
	if err != nil {
		return fmt.Errorf("failed to count servers: %w", err)
	}
	u.logger.Info("Servers found.", zap.Int("count", total))
	if total == 0 {
		u.finish(ctx, schemas.StatusNoServers, "no servers found", u.overviewShot, nil)
		return nil
	}

	for idx := 0; idx < total; idx++ {
		// Resources are positional: the controls are looked up again every pass.
		current, err := u.page.CountRole(ctx, manageRole)
		if err != nil {
			return fmt.Errorf("failed to count servers: %w", err)
		}
		if idx >= current {
			u.logger.Info("Fewer servers than before, stopping.", zap.Int("index", idx), zap.Int("count", current))
			break
		}
		if err := u.renewOne(ctx, idx, total); err != nil {
			return err
		}
	}

	if !u.renewed {
		u.finish(ctx, schemas.StatusNoRenew, "no renewable server found", u.overviewShot, nil)
	}
	return nil
}

func (u *userRun) resourceName(ctx context.Context, idx int) string {
	probeCtx, cancel := context.WithTimeout(ctx, u.o.cfg.Timings.ProbeTimeout)
	defer cancel()
	name, ok, err := u.page.RoleLabel(probeCtx, manageRole, idx, resourceCardDepth, resourceTitle)
	switch {
	case err != nil:
		return fmt.Sprintf("Server-%d", idx+1)
	case !ok:
		return schemas.UnknownField
	default:
		return name
	}
}

func (u *userRun) renewOne(ctx context.Context, idx, total int) error {
	t := u.o.cfg.Timings
	name := u.resourceName(ctx, idx)
	logger := u.logger.With(zap.Int("server", idx+1), zap.Int("servers", total), zap.String("name", name))
	logger.Info("Processing server.")

	if err := u.page.ClickRole(ctx, manageRole, idx); err != nil {
		return fmt.Errorf("failed to open server %d: %w", idx+1, err)
	}
	if err := u.sleep(ctx, t.ManageSettle); err != nil {
		return err
	}
	u.shot(ctx, fmt.Sprintf("07_server_%d_detail", idx+1))

	if err := u.page.WaitRole(ctx, renewRole, t.RenewVisible); err != nil {
		logger.Info("Renew control not available, skipping server.", zap.Error(err))
		if err := u.page.GoBack(ctx); err != nil {
			return fmt.Errorf("failed to go back from server %d: %w", idx+1, err)
		}
		return u.sleep(ctx, t.BackSettle)
	}

	before := schemas.RenewalState{LastRenewed: schemas.UnknownField, Expiry: schemas.UnknownField}
	if text, err := u.page.TextContaining(ctx, renewPanelTag, renewPanelNeedles, t.InfoBeforeTimeout); err == nil {
		before = ParseRenewalState(text)
	} else {
		logger.Debug("Renewal state unavailable before renewing.", zap.Error(err))
	}

	if err := u.page.ClickRole(ctx, renewRole, 0); err != nil {
		return fmt.Errorf("failed to click renew on server %d: %w", idx+1, err)
	}
	if err := u.sleep(ctx, t.RenewModalSettle); err != nil {
		return err
	}
	u.shot(ctx, "08_renew_modal")
	if err := u.sleep(ctx, t.ChallengeLead); err != nil {
		return err
	}

	result := u.o.deps.Solver.Solve(ctx, u.page, "Renew-Modal")
	if !result.Solved {
		logger.Warn("Challenge may not have passed, continuing.",
			zap.Bool("found", result.Found), zap.String("reason", string(result.Reason)))
	}
	if err := u.sleep(ctx, t.VerifySettle); err != nil {
		return err
	}
	afterVerify := u.shot(ctx, "09_after_verify")
	if err := u.sleep(ctx, t.InfoSettle); err != nil {
		return err
	}

	record := schemas.ResourceRenewalRecord{ResourceName: name, Before: before}
	text, err := u.page.TextContaining(ctx, renewPanelTag, renewPanelNeedles, t.InfoAfterTimeout)
	if err != nil {
		logger.Error("Failed to read renewal info.", zap.Error(err))
		u.finish(ctx, schemas.StatusInfoError, err.Error(), afterVerify, &record)
	} else {
		record.After = ParseRenewalState(text)
		status := record.Outcome()
		logger.Info("Renewal compared.", zap.String("status", string(status)),
			zap.String("before", record.Before.LastRenewed), zap.String("after", record.After.LastRenewed))
		u.renewed = true
		u.outcome.Resources = append(u.outcome.Resources, record)
		u.finish(ctx, status, "", afterVerify, &record)
	}

	u.closeModal(ctx)

	if err := u.page.Navigate(ctx, u.o.cfg.Target.ListingURL); err != nil {
		return fmt.Errorf("failed to return to server list: %w", err)
	}
	return u.sleep(ctx, t.ListingSettle)
}

// closeModal dismisses a dialog left open by the renew action, if any.
func (u *userRun) closeModal(ctx context.Context) {
	t := u.o.cfg.Timings
	if err := u.page.WaitRole(ctx, closeModalRole, t.ProbeTimeout); err != nil {
		return
	}
	if err := u.page.ClickRole(ctx, closeModalRole, 0); err != nil {
		u.logger.Debug("Failed to close modal.", zap.Error(err))
		return
	}
	_ = u.sleep(ctx, t.ModalCloseSettle)
}
