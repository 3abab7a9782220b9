package schemas

import (
	"fmt"
	"time"
)

// Credential is one user's login pair. The JSON layout accepts both the legacy
// username/password keys and identifier/secret.
type Credential struct {
	Identifier string `json:"username"`
	Secret     string `json:"password"`
}

// String never includes the secret.
func (c Credential) String() string {
	return fmt.Sprintf("Credential{%s}", c.Identifier)
}

// Status is the closed set of per-user (and per-resource) outcome kinds.
type Status string

const (
	StatusSuccess     Status = "success"
	StatusNoChange    Status = "no_change"
	StatusLoginFailed Status = "login_failed"
	StatusNoServers   Status = "no_servers"
	StatusNoRenew     Status = "no_renew"
	StatusInfoError   Status = "info_error"
	StatusError       Status = "error"
	StatusUnknown     Status = "unknown"
)

// Terminal reports whether the status ends a user's processing.
func (s Status) Terminal() bool {
	return s != StatusUnknown
}

// Shot is a handle to a captured evidence image.
type Shot struct {
	Path  string    `json:"path"`
	Label string    `json:"label"`
	Taken time.Time `json:"taken"`
}

// RenewalState is the pair of text fields scraped from a resource's renew panel.
type RenewalState struct {
	LastRenewed string `json:"lastRenewed"`
	Expiry      string `json:"expiry"`
}

// UnknownField marks a renew panel field that could not be read.
const UnknownField = "Unknown"

// ResourceRenewalRecord captures the before/after state around one renew action.
type ResourceRenewalRecord struct {
	ResourceName string       `json:"resourceName"`
	Before       RenewalState `json:"before"`
	After        RenewalState `json:"after"`
}

// Outcome applies the renewal oracle to the record.
func (r ResourceRenewalRecord) Outcome() Status {
	return CompareRenewal(r.Before, r.After)
}

// CompareRenewal is the renewal success oracle: the renewal took effect iff the
// "last renewed" value changed. A renewal that silently failed server-side and one
// that was not yet due both come out as no_change.
func CompareRenewal(before, after RenewalState) Status {
	if after.LastRenewed != before.LastRenewed {
		return StatusSuccess
	}
	return StatusNoChange
}

// RunOutcome is the result of processing one credential.
type RunOutcome struct {
	RunID      string                  `json:"runId"`
	Identifier string                  `json:"identifier"`
	Status     Status                  `json:"status"`
	Message    string                  `json:"message"`
	Evidence   *Shot                   `json:"evidence,omitempty"`
	Resources  []ResourceRenewalRecord `json:"resources,omitempty"`
	StartedAt  time.Time               `json:"startedAt"`
	FinishedAt time.Time               `json:"finishedAt"`
}

// ChallengeReason explains a challenge probe that did not end in a verified state.
type ChallengeReason string

const (
	ChallengeNotFound ChallengeReason = "not_found"
	ChallengeTimeout  ChallengeReason = "timeout"
	ChallengeError    ChallengeReason = "error"
)

// ChallengeResult is produced and consumed within one challenge-solving attempt.
type ChallengeResult struct {
	Found  bool            `json:"found"`
	Solved bool            `json:"solved"`
	Reason ChallengeReason `json:"reason,omitempty"`
	Err    error           `json:"-"`
}

// LoginReason classifies why a login check failed.
type LoginReason string

const (
	LoginAccessBlocked    LoginReason = "access_blocked"
	LoginError            LoginReason = "login_error"
	LoginStillOnLoginPage LoginReason = "still_on_login_page"
	LoginUnknown          LoginReason = "unknown"
)

// LoginCheck is the classifier's verdict on the page reached after login.
type LoginCheck struct {
	Success bool        `json:"success"`
	Reason  LoginReason `json:"reason,omitempty"`
	Message string      `json:"message,omitempty"`
}
