package reconciler

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/lkadlec/cashier/internal/storage/sqlite"
	"github.com/lkadlec/cashier/internal/xcontest"
	"github.com/lkadlec/cashier/pkg/logger"
)

// CommandFormatError is a user input error; its text is surfaced to the
// operator verbatim.
type CommandFormatError struct {
	Reason string
}

func (e *CommandFormatError) Error() string {
	return e.Reason
}

// PairCommand is a parsed pairing command
type PairCommand struct {
	TransactionID string
	Type          sqlite.MembershipType
	PilotUsername string
}

// ParsePairCommand parses the pairing command grammar:
//
//	<transaction_id:digits> <membership_type:DAILY|YEARLY> <pilot_username>
//
// A leading "pair" or "/pair" token (as rendered in notifications) is
// accepted and ignored.
func ParsePairCommand(input string) (PairCommand, error) {
	args := strings.Fields(input)
	if len(args) > 0 && (args[0] == cmdPair || args[0] == "/"+cmdPair) {
		args = args[1:]
	}
	if len(args) != 3 {
		return PairCommand{}, &CommandFormatError{Reason: fmt.Sprintf("expected 3 arguments, got %d", len(args))}
	}

	transactionID := args[0]
	if !isNumeric(transactionID) {
		return PairCommand{}, &CommandFormatError{Reason: "transaction ID must be numeric"}
	}

	membershipType, err := sqlite.ParseMembershipType(args[1])
	if err != nil {
		return PairCommand{}, &CommandFormatError{Reason: err.Error()}
	}

	return PairCommand{
		TransactionID: transactionID,
		Type:          membershipType,
		PilotUsername: args[2],
	}, nil
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// Pair creates a membership of the given type for the pilot, backed by
// the given transaction. The pilot's numeric site id is resolved (and
// cached) as part of pairing. Pairing the same transaction twice fails
// with DuplicateMembershipError.
func (s *Service) Pair(ctx context.Context, cmd PairCommand) error {
	pilot := xcontest.Pilot{Username: cmd.PilotUsername}
	if _, err := s.resolver.ResolveID(ctx, &pilot); err != nil {
		return err
	}

	s.logger.Info("Pairing transaction",
		logger.String("transaction_id", cmd.TransactionID),
		logger.String("type", string(cmd.Type)),
		logger.String("pilot", pilot.Username),
	)

	return s.memberships.CreateMembership(&sqlite.Membership{
		TransactionID: cmd.TransactionID,
		Type:          cmd.Type,
		Pilot:         pilot,
		DatePaired:    time.Now(),
	})
}

// Notify re-sends the offending-flight notification for a stored flight
// and returns the rendered message.
func (s *Service) Notify(ctx context.Context, flightID string) (string, error) {
	flight, err := s.flights.GetFlightByID(flightID)
	if err != nil {
		return "", err
	}

	message := OffendingFlightMsg(*flight)
	if err := s.notifier.Send(ctx, message); err != nil {
		return "", fmt.Errorf("failed to send notification: %w", err)
	}
	return message, nil
}
