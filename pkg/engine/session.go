// Package engine is a minimal JSON-RPC client for the analytics document
// engine, spoken over a WebSocket.
//
// Calls are strictly sequential: a Session writes one request and reads frames
// until the matching response arrives. Notifications seen in between are logged
// and dropped.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	loggerpkg "github.com/minhyannv/vocab-enricher/pkg/logger"
)

const globalHandle = -1

// Options configures Dial.
type Options struct {
	URL              string
	APIKey           string
	SchemaVersion    string
	HandshakeTimeout time.Duration
	Header           http.Header
	Dialer           *websocket.Dialer
	Logger           loggerpkg.Logger
	Verbose          bool
}

// Session is an open WebSocket to the engine.
type Session struct {
	conn          *websocket.Conn
	schemaVersion string
	logger        loggerpkg.Logger
	verbose       bool

	mu     sync.Mutex
	nextID int
	closed bool
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Handle  int    `json:"handle"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type frame struct {
	ID     *int            `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcErrorBody   `json:"error,omitempty"`
}

type rpcErrorBody struct {
	Code      int    `json:"code"`
	Parameter string `json:"parameter"`
	Message   string `json:"message"`
}

// Dial opens the WebSocket to opts.URL authenticating with a bearer token.
func Dial(ctx context.Context, opts Options) (*Session, error) {
	if opts.URL == "" {
		return nil, errors.New("engine URL is required")
	}
	if opts.Logger == nil {
		opts.Logger = loggerpkg.NopLogger{}
	}
	dialer := opts.Dialer
	if dialer == nil {
		timeout := opts.HandshakeTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: timeout,
		}
	}

	header := http.Header{}
	for k, v := range opts.Header {
		header[k] = append([]string(nil), v...)
	}
	if opts.APIKey != "" {
		header.Set("Authorization", "Bearer "+opts.APIKey)
	}

	loggerpkg.Debug(opts.Verbose, opts.Logger, "engine dial", map[string]any{"url": opts.URL})
	conn, resp, err := dialer.DialContext(ctx, opts.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %s)", opts.URL, err, resp.Status)
		}
		return nil, fmt.Errorf("dial %s: %w", opts.URL, err)
	}

	return &Session{
		conn:          conn,
		schemaVersion: opts.SchemaVersion,
		logger:        opts.Logger,
		verbose:       opts.Verbose,
	}, nil
}

// Open completes the session handshake and returns the Global handle.
// The engine announces the session with an OnConnected notification; any state
// other than created or attached fails with ErrHandshake.
func (s *Session) Open(ctx context.Context) (*Global, error) {
	s.mu.Lock()
	err := s.awaitConnected(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	g := &Global{session: s}
	version, err := g.EngineVersion(ctx)
	if err != nil {
		var rpcErr *RPCError
		if !errors.As(err, &rpcErr) {
			return nil, err
		}
		s.logger.Warn("engine version unavailable", map[string]any{"error": err.Error()})
	} else {
		s.logger.Info("engine session opened", map[string]any{
			"engine_version": version,
			"schema_version": s.schemaVersion,
		})
	}
	return g, nil
}

func (s *Session) awaitConnected(ctx context.Context) error {
	if s.closed {
		return ErrClosed
	}
	stop := s.watch(ctx)
	defer stop()

	for {
		f, err := s.read(ctx)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrHandshake, err)
		}
		if f.ID != nil || f.Method != "OnConnected" {
			s.notify(f)
			continue
		}
		var params struct {
			SessionState string `json:"qSessionState"`
		}
		if len(f.Params) > 0 {
			if err := json.Unmarshal(f.Params, &params); err != nil {
				return fmt.Errorf("%w: decode OnConnected: %w", ErrHandshake, err)
			}
		}
		switch params.SessionState {
		case "SESSION_CREATED", "SESSION_ATTACHED":
			loggerpkg.Debug(s.verbose, s.logger, "engine session state", map[string]any{"state": params.SessionState})
			return nil
		default:
			return fmt.Errorf("%w: session state %q", ErrHandshake, params.SessionState)
		}
	}
}

// Call invokes method on the object behind handle and decodes the result into
// result when it is non-nil.
func (s *Session) Call(ctx context.Context, handle int, method string, params any, result any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	if params == nil {
		params = map[string]any{}
	}

	s.nextID++
	id := s.nextID
	payload, err := json.Marshal(request{JSONRPC: "2.0", ID: id, Handle: handle, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("encode %s: %w", method, err)
	}

	stop := s.watch(ctx)
	defer stop()

	loggerpkg.Debug(s.verbose, s.logger, "sent", json.RawMessage(payload))
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return s.transportError(ctx, method, err)
	}

	for {
		f, err := s.read(ctx)
		if err != nil {
			return s.transportError(ctx, method, err)
		}
		if f.ID == nil {
			s.notify(f)
			continue
		}
		if *f.ID != id {
			s.logger.Warn("engine response for unknown request", map[string]any{"id": *f.ID, "want": id})
			continue
		}
		if f.Error != nil {
			return &RPCError{
				Method:    method,
				Code:      f.Error.Code,
				Parameter: f.Error.Parameter,
				Message:   f.Error.Message,
			}
		}
		if result == nil || len(f.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(f.Result, result); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
		return nil
	}
}

// Close sends a close frame and closes the socket. It is safe to call more
// than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	err := s.conn.Close()
	loggerpkg.Debug(s.verbose, s.logger, "engine session closed", nil)
	return err
}

func (s *Session) read(ctx context.Context) (frame, error) {
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return frame{}, ctxErr
		}
		return frame{}, err
	}
	loggerpkg.Debug(s.verbose, s.logger, "received", json.RawMessage(data))

	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return frame{}, fmt.Errorf("decode frame: %w", err)
	}
	return f, nil
}

func (s *Session) notify(f frame) {
	if f.Method == "" {
		return
	}
	loggerpkg.Debug(s.verbose, s.logger, "engine notification", map[string]any{"method": f.Method})
}

// watch applies ctx's deadline to the socket and unblocks a pending read when
// ctx is cancelled. The returned func restores the deadlines.
func (s *Session) watch(ctx context.Context) func() {
	deadline, _ := ctx.Deadline()
	_ = s.conn.SetReadDeadline(deadline)
	_ = s.conn.SetWriteDeadline(deadline)

	stopAfter := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(time.Now())
	})
	return func() {
		stopAfter()
		_ = s.conn.SetReadDeadline(time.Time{})
		_ = s.conn.SetWriteDeadline(time.Time{})
	}
}

// transportError closes the socket; later calls fail with ErrClosed.
func (s *Session) transportError(ctx context.Context, method string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		err = ctxErr
	}
	s.closed = true
	_ = s.conn.Close()
	return fmt.Errorf("%s: %w: %w", method, ErrConnection, err)
}
