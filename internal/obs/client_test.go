package obs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// fakeOBS speaks just enough obs-websocket v5 to exercise the client.
type fakeOBS struct {
	password string

	mu        sync.Mutex
	recording bool
	paused    bool
	filename  string
	requests  []string
	conn      *websocket.Conn
	writeMu   sync.Mutex
}

func newFakeOBS(t *testing.T, password string) (*fakeOBS, string) {
	t.Helper()
	f := &fakeOBS{password: password, filename: "%CCYY-%MM-%DD %hh-%mm-%ss"}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, strings.TrimPrefix(srv.URL, "http://")
}

func (f *fakeOBS) send(conn *websocket.Conn, op int, d any) error {
	raw, _ := json.Marshal(d)
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	return conn.WriteJSON(message{Op: op, D: raw})
}

// push writes an unsolicited message on the most recent connection.
func (f *fakeOBS) push(op int, d any) error {
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()
	return f.send(conn, op, d)
}

func (f *fakeOBS) serve(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()

	h := map[string]any{"obsWebSocketVersion": "5.0.0", "rpcVersion": 1}
	if f.password != "" {
		h["authentication"] = map[string]string{"challenge": "chal", "salt": "salt"}
	}
	if err := f.send(conn, opHello, h); err != nil {
		return
	}

	var msg message
	if err := conn.ReadJSON(&msg); err != nil || msg.Op != opIdentify {
		return
	}
	var id identifyData
	json.Unmarshal(msg.D, &id)
	if f.password != "" && id.Authentication != authResponse(f.password, "salt", "chal") {
		f.writeMu.Lock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(closeAuthenticationFailed, "Authentication failed."),
			time.Now().Add(time.Second))
		f.writeMu.Unlock()
		return
	}
	if err := f.send(conn, opIdentified, map[string]int{"negotiatedRpcVersion": 1}); err != nil {
		return
	}

	for {
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Op != opRequest {
			continue
		}
		var req struct {
			RequestType string          `json:"requestType"`
			RequestID   string          `json:"requestId"`
			RequestData json.RawMessage `json:"requestData"`
		}
		json.Unmarshal(msg.D, &req)
		ok, code, data := f.handle(req.RequestType, req.RequestData)
		resp := map[string]any{
			"requestType":   req.RequestType,
			"requestId":     req.RequestID,
			"requestStatus": map[string]any{"result": ok, "code": code},
		}
		if data != nil {
			resp["responseData"] = data
		}
		if err := f.send(conn, opRequestResponse, resp); err != nil {
			return
		}
	}
}

func (f *fakeOBS) handle(reqType string, data json.RawMessage) (bool, int, any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, reqType)

	switch reqType {
	case "GetRecordStatus":
		return true, 100, map[string]any{"outputActive": f.recording, "outputPaused": f.paused}
	case "StartRecord":
		if f.recording {
			return false, 500, nil
		}
		f.recording, f.paused = true, false
	case "StopRecord":
		if !f.recording {
			return false, 501, nil
		}
		f.recording, f.paused = false, false
	case "PauseRecord":
		f.paused = true
	case "ResumeRecord":
		f.paused = false
	case "GetProfileParameter":
		return true, 100, map[string]string{"parameterValue": f.filename}
	case "SetProfileParameter":
		var p profileParameter
		json.Unmarshal(data, &p)
		if p.Value != nil {
			f.filename = *p.Value
		}
	default:
		return false, 204, nil
	}
	return true, 100, nil
}

func (f *fakeOBS) requestLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func connect(t *testing.T, addr, password string) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Connect(ctx, addr, password, nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestRecordingLifecycle(t *testing.T) {
	f, addr := newFakeOBS(t, "")
	c := connect(t, addr, "")
	ctx := context.Background()

	if !c.IsConnected() || c.IsRecording() {
		t.Fatalf("after connect: connected=%v recording=%v", c.IsConnected(), c.IsRecording())
	}

	steps := []struct {
		action    RecordingAction
		recording bool
		paused    bool
	}{
		{Start, true, false},
		{Pause, true, true},
		{Unpause, true, false},
		{Stop, false, false},
	}
	for _, s := range steps {
		if err := c.SetRecordingState(ctx, s.action); err != nil {
			t.Fatalf("%s: %v", s.action, err)
		}
		if c.IsRecording() != s.recording || c.IsPaused() != s.paused {
			t.Errorf("after %s: recording=%v paused=%v, want %v %v",
				s.action, c.IsRecording(), c.IsPaused(), s.recording, s.paused)
		}
	}

	want := []string{"GetRecordStatus", "StartRecord", "PauseRecord", "ResumeRecord", "StopRecord"}
	got := f.requestLog()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("requests = %v, want %v", got, want)
	}
}

func TestFilenameFormat(t *testing.T) {
	_, addr := newFakeOBS(t, "")
	c := connect(t, addr, "")
	ctx := context.Background()

	got, err := c.FilenameFormat(ctx)
	if err != nil {
		t.Fatalf("FilenameFormat: %v", err)
	}
	if got != "%CCYY-%MM-%DD %hh-%mm-%ss" {
		t.Errorf("FilenameFormat = %q", got)
	}

	if err := c.SetFilenameFormat(ctx, "ProjectClippi/Game_1"); err != nil {
		t.Fatalf("SetFilenameFormat: %v", err)
	}
	if got, _ := c.FilenameFormat(ctx); got != "ProjectClippi/Game_1" {
		t.Errorf("FilenameFormat after set = %q", got)
	}
}

func TestRequestFailureIsTyped(t *testing.T) {
	_, addr := newFakeOBS(t, "")
	c := connect(t, addr, "")
	ctx := context.Background()

	err := c.SetRecordingState(ctx, Stop)
	var rerr *RequestError
	if !errors.As(err, &rerr) {
		t.Fatalf("Stop while idle: err = %v, want *RequestError", err)
	}
	if rerr.RequestType != "StopRecord" || rerr.Code != 501 {
		t.Errorf("RequestError = %+v", rerr)
	}
	if err := c.SetRecordingState(ctx, RecordingAction("REWIND")); err == nil {
		t.Error("unknown action should fail")
	}
}

func TestAuthentication(t *testing.T) {
	_, addr := newFakeOBS(t, "hunter2")
	connect(t, addr, "hunter2")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := Connect(ctx, addr, "wrong", nil); err == nil {
		t.Error("Connect with wrong password should fail")
	}
	if _, err := Connect(ctx, addr, "", nil); err == nil {
		t.Error("Connect without password should fail when OBS requires one")
	}
}

func TestRecordStateChangedEvent(t *testing.T) {
	f, addr := newFakeOBS(t, "")
	c := connect(t, addr, "")

	if err := c.SetRecordingState(context.Background(), Start); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// The user stops the recording from inside OBS.
	err := f.push(opEvent, map[string]any{
		"eventType":   "RecordStateChanged",
		"eventIntent": 64,
		"eventData":   map[string]any{"outputActive": false, "outputState": "OBS_WEBSOCKET_OUTPUT_STOPPED"},
	})
	if err != nil {
		t.Fatalf("push event: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for c.IsRecording() {
		if time.Now().After(deadline) {
			t.Fatal("IsRecording still true after RecordStateChanged(stopped)")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestTransitionalStatesKeepRecording(t *testing.T) {
	f, addr := newFakeOBS(t, "")
	c := connect(t, addr, "")

	if err := c.SetRecordingState(context.Background(), Start); err != nil {
		t.Fatalf("Start: %v", err)
	}
	state := func(name string, active bool) {
		t.Helper()
		err := f.push(opEvent, map[string]any{
			"eventType":   "RecordStateChanged",
			"eventIntent": 64,
			"eventData":   map[string]any{"outputActive": active, "outputState": name},
		})
		if err != nil {
			t.Fatalf("push %s: %v", name, err)
		}
	}
	waitPaused := func(want bool) {
		t.Helper()
		deadline := time.Now().Add(5 * time.Second)
		for c.IsPaused() != want {
			if time.Now().After(deadline) {
				t.Fatalf("IsPaused never became %v", want)
			}
			time.Sleep(10 * time.Millisecond)
		}
	}

	// A late STARTING arrives after the StartRecord response. Events are
	// handled in order, so once PAUSED is seen STARTING has been handled.
	state("OBS_WEBSOCKET_OUTPUT_STARTING", false)
	state("OBS_WEBSOCKET_OUTPUT_PAUSED", true)
	waitPaused(true)
	if !c.IsRecording() {
		t.Error("IsRecording false after a STARTING event")
	}

	state("OBS_WEBSOCKET_OUTPUT_STOPPING", false)
	state("OBS_WEBSOCKET_OUTPUT_RESUMED", true)
	waitPaused(false)
	if !c.IsRecording() {
		t.Error("IsRecording false after a STOPPING event")
	}
}

func TestDisconnectFailsRequests(t *testing.T) {
	f, addr := newFakeOBS(t, "")
	c := connect(t, addr, "")

	f.mu.Lock()
	f.conn.Close()
	f.mu.Unlock()

	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("client did not notice the disconnect")
	}
	if c.IsConnected() {
		t.Error("IsConnected should be false after disconnect")
	}
	if err := c.SetRecordingState(context.Background(), Start); !errors.Is(err, ErrNotConnected) {
		t.Errorf("request after disconnect: err = %v, want ErrNotConnected", err)
	}
}

func TestConnectUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := Connect(ctx, "127.0.0.1:1", "", nil); err == nil {
		t.Fatal("expected dial error")
	}
}
