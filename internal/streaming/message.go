package streaming

import (
	"encoding/json"
	"errors"
	"time"

	"txsentry/internal/domain"
)

type MessageType string

const (
	MessageTypeFindingReport  MessageType = "finding_report"
	MessageTypeAutomatedLabel MessageType = "automated_label"
)

// Message is the envelope published to the bus. Finding reports carry the findings of one
// analysis; automated labels carry a wallet the MEV heuristic marked for the registry.
type Message struct {
	ID         string           `json:"id"`
	Type       MessageType      `json:"type"`
	Chain      string           `json:"chain"`
	TraceID    string           `json:"trace_id,omitempty"`
	AnalysisID string           `json:"analysis_id,omitempty"`
	Endpoint   string           `json:"endpoint,omitempty"`
	Address    string           `json:"address"`
	RiskScore  float64          `json:"risk_score,omitempty"`
	RiskLevel  string           `json:"risk_level,omitempty"`
	Partial    bool             `json:"partial,omitempty"`
	Findings   []domain.Finding `json:"findings,omitempty"`
	Label      string           `json:"label,omitempty"`
	Source     string           `json:"source,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}

func (m Message) validate() error {
	if m.Type == "" {
		return errors.New("message type is required")
	}
	if m.Chain == "" {
		return errors.New("chain is required")
	}
	if m.Address == "" {
		return errors.New("address is required")
	}
	switch m.Type {
	case MessageTypeFindingReport:
		if m.AnalysisID == "" {
			return errors.New("analysis_id is required for finding reports")
		}
	case MessageTypeAutomatedLabel:
		if m.Label == "" {
			return errors.New("label is required for automated labels")
		}
	default:
		return errors.New("unknown message type " + string(m.Type))
	}
	return nil
}

// AutomatedLabel converts a label message into the registry record.
func (m Message) AutomatedLabel() domain.AutomatedLabel {
	return domain.AutomatedLabel{
		Address:   m.Address,
		Label:     m.Label,
		Source:    m.Source,
		UpdatedAt: m.CreatedAt,
	}
}

func Encode(msg Message) ([]byte, error) {
	if err := msg.validate(); err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}

func Decode(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	if err := msg.validate(); err != nil {
		return Message{}, err
	}
	return msg, nil
}
