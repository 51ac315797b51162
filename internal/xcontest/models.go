package xcontest

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the flight source
var (
	// ErrUnauthorized indicates the session is not (or no longer) logged in
	ErrUnauthorized = errors.New("xcontest: unauthorized")
	// ErrIdentityNotFound indicates a pilot profile page carried no numeric id
	ErrIdentityNotFound = errors.New("xcontest: pilot identity not found")
)

// ParseError indicates the page structure does not match our assumptions.
// It is never retried: it means the site markup drifted and the parser
// needs maintenance.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("xcontest: page parse error: %s", e.Reason)
}

func parseErrorf(format string, args ...any) error {
	return &ParseError{Reason: fmt.Sprintf(format, args...)}
}

// Takeoff is a launch site with fixed coordinates, used as a listing filter
type Takeoff struct {
	Name string
	Lat  float64
	Lon  float64
}

// Pilot is identified by its site username. SiteID is the numeric id the
// site uses internally; it is resolved lazily and cached for the process
// lifetime.
type Pilot struct {
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
	SiteID   int64  `json:"site_id,omitempty"`
}

// Equal reports whether two pilots are the same site account
func (p Pilot) Equal(other Pilot) bool {
	return p.Username == other.Username
}

// Flight is one recorded flight. ID is the site's internal flight id and
// the natural key; Link is the detail page URL and serves as a fallback
// identity for humans. Start is timezone-aware.
type Flight struct {
	ID    string    `json:"id"`
	Link  string    `json:"link"`
	Pilot Pilot     `json:"pilot"`
	Start time.Time `json:"start"`
}
