package compute

import (
	"errors"
	"fmt"

	"github.com/hydrowatch/hydrowatch/agent/internal/divert"
	"github.com/hydrowatch/hydrowatch/pkg/types"
)

// Input errors reject one record; the run continues.
var (
	ErrInvalidExpectedCount = errors.New("expected count must be positive")
	ErrInvalidObservedCount = errors.New("observed count must not be negative")
	ErrInvalidDivertWindow  = divert.ErrInvalidWindow
)

// ErrInvalidConfig is returned for any configuration that the engine cannot
// run with. Analysis never starts when it is reported.
var ErrInvalidConfig = errors.New("invalid configuration")

// InputError ties a rejected channel-day to the reason it was rejected.
type InputError struct {
	Record types.ChannelDay
	Err    error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%s/%s %s: %v", e.Record.LocationCode, e.Record.Channel, e.Record.Date, e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }

// ConfigError names the offending configuration field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }
