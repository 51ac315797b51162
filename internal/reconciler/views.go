package reconciler

import (
	"fmt"
	"html"
	"strings"

	"github.com/lkadlec/cashier/internal/fio"
	"github.com/lkadlec/cashier/internal/storage/sqlite"
	"github.com/lkadlec/cashier/internal/xcontest"
)

// Operator command names, as rendered into ready-to-copy messages
const (
	cmdPair   = "pair"
	cmdNotify = "notify"
)

// NewTransactionMsg renders the notification for a freshly ingested
// transaction. When a membership type was suggested from the amount, the
// message carries a ready-to-copy pairing command; the transaction memo
// doubles as the pilot username guess because payers are asked to put
// their username there.
func NewTransactionMsg(transaction fio.Transaction, suggested sqlite.MembershipType, determined bool) string {
	memo := transaction.Message
	if memo == "" {
		memo = "(no message)"
	}

	icon := "❓" // question mark
	if determined {
		icon = "✅" // check mark
	}

	lines := []string{
		"<strong>New transaction:</strong>",
		fmt.Sprintf("%s %d Kč from %s - %s", icon, transaction.Amount, html.EscapeString(transaction.From), html.EscapeString(memo)),
	}
	if determined {
		username := transaction.Message
		if username == "" {
			username = "&lt;PILOT_USERNAME&gt;"
		} else {
			username = html.EscapeString(username)
		}
		lines = append(lines, fmt.Sprintf("Pairing command: <code>/%s %s %s %s</code>", cmdPair, transaction.ID, suggested, username))
	} else {
		lines = append(lines, "Membership type not detected. Please resolve manually.")
	}
	return strings.Join(lines, "\n")
}

// OffendingFlightMsg renders the notification for a flight with no paid
// membership behind it.
func OffendingFlightMsg(flight xcontest.Flight) string {
	lines := []string{
		"<strong>Offending flight:</strong>",
		html.EscapeString(flight.Link),
		fmt.Sprintf("Follow-up command: <code>/%s %s</code>", cmdNotify, flight.ID),
	}
	return strings.Join(lines, "\n")
}

// CycleFailureMsg renders the maintenance alert for a failed cycle
func CycleFailureMsg(cycle string, err error) string {
	return fmt.Sprintf("<strong>Maintenance:</strong> %s cycle failed: %s", cycle, html.EscapeString(err.Error()))
}

// HelpMsg renders the operator command overview
func HelpMsg() string {
	lines := []string{
		fmt.Sprintf("<code>/%s &lt;TRANSACTION_ID&gt; &lt;MEMBERSHIP_TYPE&gt; &lt;PILOT_USERNAME&gt;</code> - pair a transaction to a pilot (create a membership of given type)", cmdPair),
		fmt.Sprintf("<code>/%s &lt;FLIGHT_ID&gt;</code> - re-send the offending flight notification", cmdNotify),
	}
	return strings.Join(lines, "\n")
}
