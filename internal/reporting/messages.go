package reporting

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/renewbot/api/schemas"
)

var markdownEscaper = strings.NewReplacer(
	`_`, `\_`,
	`*`, `\*`,
	"`", "\\`",
	`[`, `\[`,
)

// EscapeMarkdown escapes the characters that open entities in Telegram's
// legacy Markdown so dynamic values cannot break a message.
func EscapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

// StartedText is the notice sent when processing of a user begins.
func StartedText(identifier string) string {
	return fmt.Sprintf("🔄 Processing user: %s\nStep: login page", EscapeMarkdown(identifier))
}

// LoginSucceededText is the notice sent once a user is logged in.
func LoginSucceededText(identifier, url string) string {
	return fmt.Sprintf("✅ User %s logged in\nURL: %s", EscapeMarkdown(identifier), EscapeMarkdown(url))
}

// FormatOutcome renders the Markdown message for a terminal outcome.
func FormatOutcome(o schemas.RunOutcome, record *schemas.ResourceRenewalRecord) string {
	user := EscapeMarkdown(o.Identifier)
	server := schemas.UnknownField
	if record != nil && record.ResourceName != "" {
		server = record.ResourceName
	}
	server = EscapeMarkdown(server)

	switch o.Status {
	case schemas.StatusSuccess:
		var before, after schemas.RenewalState
		if record != nil {
			before, after = record.Before, record.After
		}
		return fmt.Sprintf("✅ *Server renewed*\n\n"+
			"👤 User: %s\n"+
			"🖥️ Server: %s\n\n"+
			"📅 *Before:*\n"+
			"   Last renewed: %s\n"+
			"   Expires: %s\n\n"+
			"📅 *After:*\n"+
			"   Last renewed: %s\n"+
			"   Expires: %s",
			user, server,
			EscapeMarkdown(before.LastRenewed), EscapeMarkdown(before.Expiry),
			EscapeMarkdown(after.LastRenewed), EscapeMarkdown(after.Expiry))

	case schemas.StatusNoChange:
		var current schemas.RenewalState
		if record != nil {
			current = record.After
		}
		return fmt.Sprintf("⚠️ *Renewal state unchanged*\n\n"+
			"👤 User: %s\n"+
			"🖥️ Server: %s\n\n"+
			"Possible causes: renewal not due yet, or verification did not pass\n\n"+
			"📅 Current state:\n"+
			"   Last renewed: %s\n"+
			"   Expires: %s",
			user, server, EscapeMarkdown(current.LastRenewed), EscapeMarkdown(current.Expiry))

	case schemas.StatusInfoError:
		return fmt.Sprintf("⚠️ *Could not read renewal info*\nUser: %s\nServer: %s", user, server)

	case schemas.StatusLoginFailed:
		return fmt.Sprintf("❌ *Login failed*\nUser: %s\nReason: %s", user, EscapeMarkdown(o.Message))

	case schemas.StatusNoServers:
		return fmt.Sprintf("❌ *No servers found*\nUser: %s", user)

	case schemas.StatusNoRenew:
		return fmt.Sprintf("⚠️ *No renewal performed*\nUser: %s\nReason: no renewable server found", user)

	case schemas.StatusError:
		return fmt.Sprintf("❌ *Processing error*\nUser: %s\nError: %s", user, EscapeMarkdown(o.Message))

	default:
		return fmt.Sprintf("❔ *Unknown state*\nUser: %s\n%s", user, EscapeMarkdown(o.Message))
	}
}
