package reviewable

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of a reviewable. Values match the stored integers.
type Status int

const (
	StatusPending  Status = 0
	StatusApproved Status = 1
	StatusRejected Status = 2
	StatusIgnored  Status = 3
	StatusDeleted  Status = 4
)

var statusNames = map[Status]string{
	StatusPending:  "pending",
	StatusApproved: "approved",
	StatusRejected: "rejected",
	StatusIgnored:  "ignored",
	StatusDeleted:  "deleted",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

func (s Status) IsPending() bool { return s == StatusPending }

// ParseStatus accepts a status name ("approved") or its numeric value ("1").
func ParseStatus(raw string) (Status, error) {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if trimmed == "" {
		return StatusPending, nil
	}
	for status, name := range statusNames {
		if name == trimmed || fmt.Sprint(int(status)) == trimmed {
			return status, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
}

// ScoreStatus tracks one reviewer's score relative to the outcome.
type ScoreStatus int

const (
	ScoreStatusPending   ScoreStatus = 0
	ScoreStatusAgreed    ScoreStatus = 1
	ScoreStatusDisagreed ScoreStatus = 2
	ScoreStatusIgnored   ScoreStatus = 3
)

func (s ScoreStatus) String() string {
	switch s {
	case ScoreStatusPending:
		return "pending"
	case ScoreStatusAgreed:
		return "agreed"
	case ScoreStatusDisagreed:
		return "disagreed"
	case ScoreStatusIgnored:
		return "ignored"
	default:
		return fmt.Sprintf("score_status(%d)", int(s))
	}
}

var scoreTransitions = map[Status]ScoreStatus{
	StatusApproved: ScoreStatusAgreed,
	StatusRejected: ScoreStatusDisagreed,
	StatusIgnored:  ScoreStatusIgnored,
}

// ScoreStatusFor returns the status pending scores move to when the
// reviewable transitions to status. Deleted and pending have no mapping.
func ScoreStatusFor(status Status) (ScoreStatus, bool) {
	scoreStatus, ok := scoreTransitions[status]
	return scoreStatus, ok
}

// HistoryType classifies an audit row.
type HistoryType int

const (
	HistoryCreated      HistoryType = 0
	HistoryTransitioned HistoryType = 1
	HistoryEdited       HistoryType = 2
)

func (t HistoryType) String() string {
	switch t {
	case HistoryCreated:
		return "created"
	case HistoryTransitioned:
		return "transitioned"
	case HistoryEdited:
		return "edited"
	default:
		return fmt.Sprintf("history(%d)", int(t))
	}
}
