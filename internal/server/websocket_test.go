package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apitypes "github.com/kubilitics/kubilitics-copilot/pkg/types"
)

func dialStream(t *testing.T, srv *Server, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/diagnose"
	return websocket.DefaultDialer.Dial(url, header)
}

// readEvents reads frames until the server closes the stream.
func readEvents(t *testing.T, conn *websocket.Conn) ([]apitypes.StreamEvent, error) {
	t.Helper()
	var events []apitypes.StreamEvent
	for {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var ev apitypes.StreamEvent
		if err := conn.ReadJSON(&ev); err != nil {
			return events, err
		}
		events = append(events, ev)
	}
}

func TestDiagnoseStream(t *testing.T) {
	conn, _, err := dialStream(t, newTestServer(t, nil), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(apitypes.DiagnoseRequest{
		Files: []apitypes.FilePayload{
			{Filename: "app/models.py", Content: EncodeContent("import views\n\nclass User:\n    pass\n")},
		},
		ErrorLog: "Traceback (most recent call last):\n  File \"/srv/app/models.py\", line 1, in <module>\nImportError: cannot import name 'User' (most likely due to a circular import)",
		Summary:  "moved User into models.py",
	}))

	events, err := readEvents(t, conn)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected read error: %v", err)

	require.Len(t, events, 6)
	var stages []string
	for _, ev := range events[:5] {
		assert.Equal(t, apitypes.EventStage, ev.Type)
		require.NotNil(t, ev.Count)
		stages = append(stages, ev.Stage)
	}
	assert.Equal(t, []string{"references", "context", "retrieval", "prompt", "model"}, stages)
	assert.Equal(t, 1, *events[0].Count)
	assert.Equal(t, 1, *events[1].Count)
	assert.Equal(t, "fallback", events[4].Path)

	final := events[5]
	assert.Equal(t, apitypes.EventResult, final.Type)
	assert.Equal(t, "light", final.Tier)
	require.NotNil(t, final.Result)
	assert.InDelta(t, 0.95, final.Result.Confidence, 1e-9)
}

func TestDiagnoseStreamSchemaError(t *testing.T) {
	llm := &fakeAdapter{reply: `{"root_cause":["not","a","string"]}`}
	conn, _, err := dialStream(t, newTestServer(t, nil, WithLLMAdapter(llm)), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(apitypes.DiagnoseRequest{ErrorLog: "boom"}))

	events, err := readEvents(t, conn)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseInternalServerErr), "unexpected read error: %v", err)
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, apitypes.EventError, last.Type)
	assert.Contains(t, last.Error, "invalid response from model: root_cause")
}

func TestDiagnoseStreamInvalidRequest(t *testing.T) {
	conn, _, err := dialStream(t, newTestServer(t, nil), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	events, err := readEvents(t, conn)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseUnsupportedData), "unexpected read error: %v", err)
	require.Len(t, events, 1)
	assert.Equal(t, apitypes.EventError, events[0].Type)
}

func TestDiagnoseStreamRejectsForeignOrigin(t *testing.T) {
	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := dialStream(t, newTestServer(t, nil), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
