package filesink

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smallhouse123/go-analytics/service/analytics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func readLines(t *testing.T, path string) []map[string]interface{} {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []map[string]interface{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &m))
		out = append(out, m)
	}
	require.NoError(t, scanner.Err())
	return out
}

func TestWriteAppendsNDJSONPerHour(t *testing.T) {
	t.Setenv("K8S_POD_NAME", "")
	dir := t.TempDir()
	sink, err := New(dir, zap.NewNop())
	require.NoError(t, err)
	defer sink.Close()

	clock := time.Date(2026, 10, 19, 14, 5, 0, 0, time.Local)
	sink.now = func() time.Time { return clock }
	ctx := context.Background()

	require.NoError(t, sink.Write(ctx, []analytics.Event{
		{Type: analytics.EventPageView, Data: analytics.PageView{Path: "/home"}, SessionID: "s"},
		{Type: analytics.EventUserInteraction, Data: analytics.UserInteraction{Action: "click"}, SessionID: "s"},
	}))
	require.NoError(t, sink.Write(ctx, []analytics.Event{
		{Type: analytics.EventFormSubmission, Data: analytics.FormSubmission{FormType: "contact", Success: true}},
	}))

	clock = clock.Add(time.Hour)
	require.NoError(t, sink.Write(ctx, []analytics.Event{{Type: analytics.EventError, Data: analytics.ErrorReport{Message: "boom"}}}))

	first := readLines(t, filepath.Join(dir, "26_10_19__14.log"))
	require.Len(t, first, 3)
	assert.Equal(t, "page_view", first[0]["eventType"])
	assert.Equal(t, "/home", first[0]["eventData"].(map[string]interface{})["path"])
	assert.Equal(t, "user_interaction", first[1]["eventType"])
	assert.Equal(t, "form_submission", first[2]["eventType"])

	second := readLines(t, filepath.Join(dir, "26_10_19__15.log"))
	require.Len(t, second, 1)
	assert.Equal(t, "error", second[0]["eventType"])
}

func TestNewUsesPodSubdirectory(t *testing.T) {
	t.Setenv("K8S_POD_NAME", "beacon-7d9f")
	dir := t.TempDir()

	sink, err := New(dir, zap.NewNop())
	require.NoError(t, err)
	defer sink.Close()

	assert.DirExists(t, filepath.Join(dir, "beacon-7d9f"))
}

func TestNewRequiresDirectory(t *testing.T) {
	_, err := New("", zap.NewNop())
	assert.Error(t, err)
}

func TestWriteAfterClose(t *testing.T) {
	t.Setenv("K8S_POD_NAME", "")
	sink, err := New(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, sink.Close())
	err = sink.Write(context.Background(), []analytics.Event{{Type: analytics.EventPageView}})
	assert.ErrorIs(t, err, ErrClosed)
}
