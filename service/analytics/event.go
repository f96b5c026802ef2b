package analytics

import (
	"encoding/json"
	"fmt"
	"time"
)

type EventType string

const (
	EventPageView        EventType = "page_view"
	EventUserInteraction EventType = "user_interaction"
	EventFormSubmission  EventType = "form_submission"
	EventError           EventType = "error"
)

// EventData is the typed payload of an event. The concrete type decides the event type.
type EventData interface {
	EventType() EventType
}

type PageView struct {
	Path     string `json:"path"`
	Title    string `json:"title,omitempty"`
	Referrer string `json:"referrer,omitempty"`
}

func (PageView) EventType() EventType { return EventPageView }

type UserInteraction struct {
	Action     string            `json:"action"`
	Element    string            `json:"element,omitempty"`
	Label      string            `json:"label,omitempty"`
	DurationMs int64             `json:"durationMs,omitempty"`
	Details    map[string]string `json:"details,omitempty"`
}

func (UserInteraction) EventType() EventType { return EventUserInteraction }

type FormSubmission struct {
	FormType string   `json:"formType"`
	Success  bool     `json:"success"`
	Fields   []string `json:"fields,omitempty"`
}

func (FormSubmission) EventType() EventType { return EventFormSubmission }

type ErrorReport struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
	Context string `json:"context,omitempty"`
}

func (ErrorReport) EventType() EventType { return EventError }

// Event is one buffered analytics record.
type Event struct {
	Type       EventType `json:"eventType"`
	Data       EventData `json:"eventData"`
	PageURL    string    `json:"pageUrl"`
	UserAgent  string    `json:"userAgent"`
	SessionID  string    `json:"sessionId"`
	RecordedAt time.Time `json:"recordedAt"`
}

// DataJSON encodes the payload for the event_data column.
func (e Event) DataJSON() ([]byte, error) {
	if e.Data == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(e.Data)
}

// DecodeEventData parses a wire payload into the variant registered for t.
// An empty payload yields the zero value of that variant.
func DecodeEventData(t EventType, raw json.RawMessage) (EventData, error) {
	var data EventData
	switch t {
	case EventPageView:
		var v PageView
		if err := decodeInto(raw, &v); err != nil {
			return nil, err
		}
		data = v
	case EventUserInteraction:
		var v UserInteraction
		if err := decodeInto(raw, &v); err != nil {
			return nil, err
		}
		data = v
	case EventFormSubmission:
		var v FormSubmission
		if err := decodeInto(raw, &v); err != nil {
			return nil, err
		}
		data = v
	case EventError:
		var v ErrorReport
		if err := decodeInto(raw, &v); err != nil {
			return nil, err
		}
		data = v
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, t)
	}
	return data, nil
}

func decodeInto(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode event data: %w", err)
	}
	return nil
}
