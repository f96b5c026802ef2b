package analytics

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEventData(t *testing.T) {
	tests := []struct {
		name    string
		typ     EventType
		raw     string
		want    EventData
		wantErr error
	}{
		{
			name: "page view",
			typ:  EventPageView,
			raw:  `{"path":"/home","title":"Home","referrer":"https://google.com"}`,
			want: PageView{Path: "/home", Title: "Home", Referrer: "https://google.com"},
		},
		{
			name: "user interaction",
			typ:  EventUserInteraction,
			raw:  `{"action":"click","element":"cta","durationMs":120,"details":{"variant":"b"}}`,
			want: UserInteraction{Action: "click", Element: "cta", DurationMs: 120, Details: map[string]string{"variant": "b"}},
		},
		{
			name: "form submission",
			typ:  EventFormSubmission,
			raw:  `{"formType":"contact","success":true,"fields":["email"]}`,
			want: FormSubmission{FormType: "contact", Success: true, Fields: []string{"email"}},
		},
		{
			name: "error report",
			typ:  EventError,
			raw:  `{"message":"boom","context":"checkout"}`,
			want: ErrorReport{Message: "boom", Context: "checkout"},
		},
		{
			name: "empty payload",
			typ:  EventPageView,
			raw:  ``,
			want: PageView{},
		},
		{
			name: "null payload",
			typ:  EventFormSubmission,
			raw:  `null`,
			want: FormSubmission{},
		},
		{
			name:    "unknown type",
			typ:     EventType("purchase"),
			raw:     `{}`,
			wantErr: ErrUnknownEventType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeEventData(tt.typ, json.RawMessage(tt.raw))
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.typ, got.EventType())
		})
	}
}

func TestDecodeEventDataRejectsWrongShape(t *testing.T) {
	_, err := DecodeEventData(EventUserInteraction, json.RawMessage(`{"action":42}`))
	assert.Error(t, err)
}

func TestEventJSON(t *testing.T) {
	evt := Event{Type: EventUserInteraction, Data: UserInteraction{Action: "click"}}

	data, err := evt.DataJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"click"}`, string(data))

	data, err = Event{Type: EventPageView}.DataJSON()
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))

	encoded, err := json.Marshal(evt)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"eventType":"user_interaction"`)
	assert.Contains(t, string(encoded), `"eventData":{"action":"click"}`)
}
