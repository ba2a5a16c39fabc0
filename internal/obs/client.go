// Package obs is a small obs-websocket (protocol v5) client covering what
// replay recording needs: start/stop/pause/resume, record status, and the
// output filename format.
package obs

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// DefaultAddress is where obs-websocket listens unless configured otherwise.
const DefaultAddress = "localhost:4455"

// RecordingAction is one of the four recording commands.
type RecordingAction string

const (
	Start   RecordingAction = "START"
	Stop    RecordingAction = "STOP"
	Pause   RecordingAction = "PAUSE"
	Unpause RecordingAction = "UNPAUSE"
)

var requestTypes = map[RecordingAction]string{
	Start:   "StartRecord",
	Stop:    "StopRecord",
	Pause:   "PauseRecord",
	Unpause: "ResumeRecord",
}

// ErrNotConnected is returned for requests made after the connection closed.
var ErrNotConnected = errors.New("obs: not connected")

// RequestError is a request OBS answered with a failure status.
type RequestError struct {
	RequestType string
	Code        int
	Comment     string
}

func (e *RequestError) Error() string {
	msg := fmt.Sprintf("obs: %s failed with code %d", e.RequestType, e.Code)
	if e.Comment != "" {
		msg += ": " + e.Comment
	}
	return msg
}

// Client is a connected obs-websocket session. Safe for concurrent use.
type Client struct {
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex
	mu      sync.Mutex
	pending map[string]chan result

	connected atomic.Bool
	recording atomic.Bool
	paused    atomic.Bool
	done      chan struct{}
}

type result struct {
	resp response
	err  error
}

// Connect dials address, performs the Hello/Identify handshake
// (authenticating with password when OBS asks for it) and loads the current
// record status.
func Connect(ctx context.Context, address, password string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if address == "" {
		address = DefaultAddress
	}
	url := address
	if !strings.HasPrefix(url, "ws://") && !strings.HasPrefix(url, "wss://") {
		url = "ws://" + url
	}

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to obs at %s: %w", address, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	}

	if err := identify(conn, password); err != nil {
		conn.Close()
		return nil, err
	}
	conn.SetReadDeadline(time.Time{})

	c := &Client{
		conn:    conn,
		logger:  logger,
		pending: make(map[string]chan result),
		done:    make(chan struct{}),
	}
	c.connected.Store(true)
	go c.readLoop()

	if _, err := c.RecordStatus(ctx); err != nil {
		c.Close()
		return nil, err
	}
	logger.Info("connected to obs", "address", address, "recording", c.IsRecording())
	return c, nil
}

// identify runs the handshake up to and including Identified.
func identify(conn *websocket.Conn, password string) error {
	var msg message
	if err := conn.ReadJSON(&msg); err != nil {
		return fmt.Errorf("obs hello: %w", err)
	}
	if msg.Op != opHello {
		return fmt.Errorf("obs hello: unexpected op %d", msg.Op)
	}
	var h hello
	if err := json.Unmarshal(msg.D, &h); err != nil {
		return fmt.Errorf("obs hello: %w", err)
	}

	id := identifyData{RPCVersion: rpcVersion, EventSubscriptions: subscribeOutputs}
	if h.Authentication != nil {
		if password == "" {
			return errors.New("obs requires a password but none is configured")
		}
		id.Authentication = authResponse(password, h.Authentication.Salt, h.Authentication.Challenge)
	}
	if err := writeMessage(conn, opIdentify, id); err != nil {
		return fmt.Errorf("obs identify: %w", err)
	}

	if err := conn.ReadJSON(&msg); err != nil {
		var ce *websocket.CloseError
		if errors.As(err, &ce) && ce.Code == closeAuthenticationFailed {
			return errors.New("obs rejected the password")
		}
		return fmt.Errorf("obs identify: %w", err)
	}
	if msg.Op != opIdentified {
		return fmt.Errorf("obs identify: unexpected op %d", msg.Op)
	}
	return nil
}

// authResponse computes base64(sha256(base64(sha256(password+salt)) + challenge)).
func authResponse(password, salt, challenge string) string {
	secret := sha256.Sum256([]byte(password + salt))
	secret64 := base64.StdEncoding.EncodeToString(secret[:])
	auth := sha256.Sum256([]byte(secret64 + challenge))
	return base64.StdEncoding.EncodeToString(auth[:])
}

func writeMessage(conn *websocket.Conn, op int, d any) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	return conn.WriteJSON(message{Op: op, D: raw})
}

// IsConnected reports whether the websocket is still open.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// IsRecording reports whether OBS has an active recording output (paused
// or not).
func (c *Client) IsRecording() bool {
	return c.recording.Load()
}

// IsPaused reports whether the active recording is paused.
func (c *Client) IsPaused() bool {
	return c.paused.Load()
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// SetRecordingState sends the request matching action.
func (c *Client) SetRecordingState(ctx context.Context, action RecordingAction) error {
	reqType, ok := requestTypes[action]
	if !ok {
		return fmt.Errorf("obs: unknown recording action %q", action)
	}
	if _, err := c.call(ctx, reqType, nil); err != nil {
		return err
	}
	switch action {
	case Start:
		c.recording.Store(true)
		c.paused.Store(false)
	case Stop:
		c.recording.Store(false)
		c.paused.Store(false)
	case Pause:
		c.paused.Store(true)
	case Unpause:
		c.paused.Store(false)
	}
	return nil
}

// RecordStatus queries OBS and refreshes IsRecording/IsPaused.
func (c *Client) RecordStatus(ctx context.Context) (RecordStatus, error) {
	var st RecordStatus
	raw, err := c.call(ctx, "GetRecordStatus", nil)
	if err != nil {
		return st, err
	}
	if err := json.Unmarshal(raw, &st); err != nil {
		return st, fmt.Errorf("obs: decoding record status: %w", err)
	}
	c.recording.Store(st.OutputActive)
	c.paused.Store(st.OutputPaused)
	return st, nil
}

// FilenameFormat returns the profile's Output/FilenameFormatting value.
func (c *Client) FilenameFormat(ctx context.Context) (string, error) {
	raw, err := c.call(ctx, "GetProfileParameter", profileParameter{
		Category: "Output",
		Name:     "FilenameFormatting",
	})
	if err != nil {
		return "", err
	}
	var p profileParameterValue
	if err := json.Unmarshal(raw, &p); err != nil {
		return "", fmt.Errorf("obs: decoding filename format: %w", err)
	}
	return p.Value, nil
}

// SetFilenameFormat sets the profile's Output/FilenameFormatting value.
func (c *Client) SetFilenameFormat(ctx context.Context, format string) error {
	_, err := c.call(ctx, "SetProfileParameter", profileParameter{
		Category: "Output",
		Name:     "FilenameFormatting",
		Value:    &format,
	})
	return err
}

// Close ends the session and waits for the read loop to exit.
func (c *Client) Close() error {
	c.writeMu.Lock()
	err := c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	if err != nil {
		c.conn.Close()
	}
	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		c.conn.Close()
		<-c.done
	}
	return nil
}

func (c *Client) call(ctx context.Context, reqType string, data any) (json.RawMessage, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}

	id := uuid.NewString()
	ch := make(chan result, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	c.writeMu.Lock()
	err := writeMessage(c.conn, opRequest, request{RequestType: reqType, RequestID: id, RequestData: data})
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("obs: sending %s: %w", reqType, err)
	}

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		if !r.resp.RequestStatus.Result {
			return nil, &RequestError{
				RequestType: reqType,
				Code:        r.resp.RequestStatus.Code,
				Comment:     r.resp.RequestStatus.Comment,
			}
		}
		return r.resp.ResponseData, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.connected.Store(false)
			c.conn.Close()
			c.failPending(ErrNotConnected)
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.logger.Warn("obs connection lost", "err", err)
			}
			return
		}

		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Debug("ignoring malformed obs message", "err", err)
			continue
		}
		switch msg.Op {
		case opRequestResponse:
			var resp response
			if err := json.Unmarshal(msg.D, &resp); err != nil {
				c.logger.Debug("ignoring malformed obs response", "err", err)
				continue
			}
			c.mu.Lock()
			ch, ok := c.pending[resp.RequestID]
			c.mu.Unlock()
			if ok {
				select {
				case ch <- result{resp: resp}:
				default:
				}
			}
		case opEvent:
			c.handleEvent(msg.D)
		}
	}
}

func (c *Client) handleEvent(raw json.RawMessage) {
	var ev event
	if err := json.Unmarshal(raw, &ev); err != nil || ev.EventType != "RecordStateChanged" {
		return
	}
	var st recordStateChanged
	if err := json.Unmarshal(ev.EventData, &st); err != nil {
		return
	}
	switch st.OutputState {
	case outputPaused:
		c.paused.Store(true)
	case outputResumed:
		c.paused.Store(false)
	case outputStarted:
		c.recording.Store(true)
	case outputStopped:
		c.recording.Store(false)
		c.paused.Store(false)
	}
	c.logger.Debug("obs record state changed", "state", st.OutputState, "active", st.OutputActive)
}

func (c *Client) failPending(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.pending {
		select {
		case ch <- result{err: err}:
		default:
		}
		delete(c.pending, id)
	}
}
