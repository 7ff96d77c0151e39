package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// BatchReadyMessage announces that a week's statement exports are on disk
// and ready to reconcile. It carries file paths only; the worker loads
// budget, rules, and overrides from storage.
type BatchReadyMessage struct {
	CreditPaths   []string  `json:"credit_paths"`
	CheckingPaths []string  `json:"checking_paths"`
	OverridesPath string    `json:"overrides_path,omitempty"`
	WeekOf        string    `json:"week_of,omitempty"` // YYYY-MM-DD, defaults to today
	Timestamp     time.Time `json:"timestamp"`
}

// NewBatchReadyMessage creates a message for the given export paths.
func NewBatchReadyMessage(creditPaths, checkingPaths []string, overridesPath string) *BatchReadyMessage {
	return &BatchReadyMessage{
		CreditPaths:   creditPaths,
		CheckingPaths: checkingPaths,
		OverridesPath: overridesPath,
		Timestamp:     time.Now(),
	}
}

// Validate rejects messages that reference no exports at all.
func (m *BatchReadyMessage) Validate() error {
	if len(m.CreditPaths) == 0 && len(m.CheckingPaths) == 0 {
		return errors.New("batch message references no export files")
	}
	if m.WeekOf != "" {
		if _, err := time.Parse("2006-01-02", m.WeekOf); err != nil {
			return errors.New("batch message week_of must be YYYY-MM-DD")
		}
	}
	return nil
}

// Week returns the reporting week start, falling back to now when unset.
func (m *BatchReadyMessage) Week() time.Time {
	if m.WeekOf != "" {
		if t, err := time.Parse("2006-01-02", m.WeekOf); err == nil {
			return t
		}
	}
	return time.Now()
}

func (m *BatchReadyMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func BatchReadyMessageFromJSON(data []byte) (*BatchReadyMessage, error) {
	var msg BatchReadyMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
