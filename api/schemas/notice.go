package schemas

// NoticeKind separates terminal outcomes from informational progress notes.
type NoticeKind string

const (
	NoticeOutcome  NoticeKind = "outcome"
	NoticeProgress NoticeKind = "progress"
)

// Notice is one formatted message handed to the delivery sinks.
type Notice struct {
	Kind NoticeKind
	// Text is Telegram-flavoured Markdown.
	Text string
	Shot *Shot
	// Outcome is set for NoticeOutcome only.
	Outcome *RunOutcome
	// Resource is the per-resource record behind a renewal outcome, if any.
	Resource *ResourceRenewalRecord
}
