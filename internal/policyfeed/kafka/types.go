package kafka

import (
	"errors"
	"fmt"
	"time"

	"github.com/mohammed-shakir/adaptive-refresh/internal/policy"
)

const (
	OpSetPolicy     = "set_policy"
	OpSetOverride   = "set_override"
	OpClearOverride = "clear_override"
	OpModeConfirmed = "mode_confirmed"
)

var ErrBadEvent = errors.New("policy feed: malformed event")

// WireEvent is the JSON value of one feed message. Version orders events of
// the same op for a display; 0 means unversioned.
type WireEvent struct {
	Display string         `json:"display"`
	Op      string         `json:"op"`
	Policy  *policy.Policy `json:"policy,omitempty"`
	ModeID  *int           `json:"mode_id,omitempty"`
	Version uint64         `json:"version"`
	TS      time.Time      `json:"ts"`
}

func (w WireEvent) Validate() error {
	if w.Display == "" {
		return fmt.Errorf("%w: display is required", ErrBadEvent)
	}
	switch w.Op {
	case OpSetPolicy, OpSetOverride:
		if w.Policy == nil {
			return fmt.Errorf("%w: %s requires policy", ErrBadEvent, w.Op)
		}
	case OpModeConfirmed:
		if w.ModeID == nil {
			return fmt.Errorf("%w: %s requires mode_id", ErrBadEvent, w.Op)
		}
	case OpClearOverride:
	default:
		return fmt.Errorf("%w: unknown op %q", ErrBadEvent, w.Op)
	}
	return nil
}
