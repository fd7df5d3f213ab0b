package resultnav

import (
	"fmt"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/resultnav/internal/clock"
	"pkt.systems/resultnav/internal/txnid"
)

// Config configures a Navigator.
type Config struct {
	// Presenter builds, displays and closes units. Required.
	Presenter Presenter
	// Logger receives navigator events. Nil disables logging.
	Logger pslog.Logger
	// Clock stamps registry and pending entries. Nil uses the system clock.
	Clock clock.Clock
	// NewTransactionID generates transaction ids. Nil uses UUIDv7 hex ids.
	NewTransactionID func() string
	// PendingMaxAge bounds how long SweepPending keeps undelivered outcomes.
	// Zero keeps them until consumed; nothing is evicted implicitly.
	PendingMaxAge time.Duration
}

// Validate checks the configuration and fills defaults.
func (c *Config) Validate() error {
	if c.Presenter == nil {
		return ErrNoPresenter
	}
	if c.PendingMaxAge < 0 {
		return fmt.Errorf("resultnav: pending max age must be >= 0, got %s", c.PendingMaxAge)
	}
	if c.NewTransactionID == nil {
		c.NewTransactionID = txnid.New
	}
	c.Clock = clock.Ensure(c.Clock)
	return nil
}
