package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// errBadFrame marks inbound payloads that failed validation. Bad frames are
// logged and skipped; they never terminate the session.
var errBadFrame = errors.New("bad frame")

// Inbound is the untrusted client payload. The user_id field is accepted
// for wire compatibility but ignored: the persisted sender is always the
// identity verified at admission.
type Inbound struct {
	UserID    string `json:"user_id"`
	Timestamp string `json:"timestamp"`
	Content   string `json:"content"`
}

// parseInbound validates one raw frame and returns its parsed timestamp.
func parseInbound(data []byte) (Inbound, time.Time, error) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return Inbound{}, time.Time{}, fmt.Errorf("%w: %v", errBadFrame, err)
	}
	if in.Content == "" {
		return Inbound{}, time.Time{}, fmt.Errorf("%w: empty content", errBadFrame)
	}
	ts, err := time.Parse(time.RFC3339, in.Timestamp)
	if err != nil {
		return Inbound{}, time.Time{}, fmt.Errorf("%w: timestamp: %v", errBadFrame, err)
	}
	return in, ts, nil
}
