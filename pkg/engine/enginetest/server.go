// Package enginetest runs an in-process fake of the document engine for tests.
//
// Usage:
//
//	srv := enginetest.NewServer(t)
//	srv.AddObject("m1", "measure", map[string]any{"qMetaDef": map[string]any{"title": "Orders"}})
//	sess, err := engine.Dial(ctx, engine.Options{URL: srv.URL("app-1")})
package enginetest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
)

const docHandle = 1

// Call records one request received by the fake.
type Call struct {
	Handle   int
	Method   string
	ObjectID string
	Params   json.RawMessage
}

type object struct {
	id    string
	qType string
	props json.RawMessage
}

type failure struct {
	code    int
	message string
}

// Server is a fake engine reachable over ws://.
type Server struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu           sync.Mutex
	order        []string
	objects      map[string]*object
	handles      map[int]string
	nextHandle   int
	failures     map[string]failure
	calls        []Call
	authHeader   string
	sessionState string
	notifyEvery  bool
	drops        map[string]bool
	closeCode    int
}

// NewServer starts a fake engine that is shut down when t finishes.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		objects:      map[string]*object{},
		handles:      map[int]string{},
		nextHandle:   docHandle + 1,
		failures:     map[string]failure{},
		drops:        map[string]bool{},
		sessionState: "SESSION_CREATED",
		notifyEvery:  true,
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.srv.Close)
	return s
}

// URL returns the ws:// endpoint of the app.
func (s *Server) URL(appID string) string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/app/" + appID
}

// AddObject registers an object with its properties.
func (s *Server) AddObject(id, qType string, props any) {
	raw, err := json.Marshal(props)
	if err != nil {
		panic(fmt.Sprintf("enginetest: marshal props for %s: %v", id, err))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[id]; !ok {
		s.order = append(s.order, id)
	}
	s.objects[id] = &object{id: id, qType: qType, props: raw}
}

// Fail makes method fail with an engine error. When objectID is non-empty only
// calls targeting that object fail.
func (s *Server) Fail(method, objectID string, code int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+"|"+objectID] = failure{code: code, message: message}
}

// DropOn makes the fake close the socket without a close frame when it
// receives method.
func (s *Server) DropOn(method string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drops[method] = true
}

// Closed reports whether the client ended its last connection with a normal
// close frame.
func (s *Server) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCode == websocket.CloseNormalClosure
}

// SetSessionState sets the qSessionState announced on connect.
func (s *Server) SetSessionState(state string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionState = state
}

// Props returns the stored properties of an object, or nil.
func (s *Server) Props(id string) json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if obj, ok := s.objects[id]; ok {
		return append(json.RawMessage(nil), obj.props...)
	}
	return nil
}

// Calls returns the recorded requests, optionally filtered by method.
func (s *Server) Calls(method string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Call
	for _, c := range s.calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// AuthHeader returns the Authorization header of the last connection.
func (s *Server) AuthHeader() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authHeader
}

type rpcRequest struct {
	ID     int             `json:"id"`
	Handle int             `json:"handle"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.authHeader = r.Header.Get("Authorization")
	s.closeCode = 0
	state := s.sessionState
	s.mu.Unlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]any{
		"jsonrpc": "2.0",
		"method":  "OnConnected",
		"params":  map[string]any{"qSessionState": state},
	}); err != nil {
		return
	}

	for {
		var req rpcRequest
		if err := conn.ReadJSON(&req); err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				s.mu.Lock()
				s.closeCode = closeErr.Code
				s.mu.Unlock()
			}
			return
		}
		if s.dropped(req) {
			return
		}
		if s.notifyEvery {
			_ = conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "method": "OnHeartbeat", "params": map[string]any{}})
		}
		if err := conn.WriteJSON(s.handle(req)); err != nil {
			return
		}
	}
}

func (s *Server) dropped(req rpcRequest) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.drops[req.Method] {
		return false
	}
	s.calls = append(s.calls, Call{Handle: req.Handle, Method: req.Method, Params: req.Params})
	return true
}

func (s *Server) handle(req rpcRequest) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	var params struct {
		ID      string          `json:"qId"`
		DocName string          `json:"qDocName"`
		Prop    json.RawMessage `json:"qProp"`
	}
	_ = json.Unmarshal(req.Params, &params)

	target := params.ID
	if target == "" {
		target = s.handles[req.Handle]
	}
	s.calls = append(s.calls, Call{Handle: req.Handle, Method: req.Method, ObjectID: target, Params: req.Params})

	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	for _, key := range []string{req.Method + "|" + target, req.Method + "|"} {
		if f, ok := s.failures[key]; ok {
			resp["error"] = map[string]any{"code": f.code, "parameter": target, "message": f.message}
			return resp
		}
	}

	switch req.Method {
	case "EngineVersion":
		resp["result"] = map[string]any{"qVersion": map[string]any{"qComponentVersion": "12.1900.0"}}
	case "OpenDoc":
		resp["result"] = returnOf("Doc", docHandle, params.DocName)
	case "GetAllInfos":
		infos := make([]map[string]any, 0, len(s.order))
		for _, id := range s.order {
			infos = append(infos, map[string]any{"qId": id, "qType": s.objects[id].qType})
		}
		resp["result"] = map[string]any{"qInfos": infos}
		resp["change"] = []int{docHandle}
	case "GetObject", "GetMeasure", "GetDimension":
		obj, ok := s.objects[params.ID]
		if !ok {
			resp["result"] = map[string]any{"qReturn": map[string]any{"qType": "GenericObject", "qHandle": nil}}
			break
		}
		resp["result"] = returnOf(typeFor(req.Method), s.bind(obj.id), obj.id)
	case "CreateObject":
		var info struct {
			Info struct {
				ID   string `json:"qId"`
				Type string `json:"qType"`
			} `json:"qInfo"`
		}
		_ = json.Unmarshal(params.Prop, &info)
		id := info.Info.ID
		if id == "" {
			id = fmt.Sprintf("obj-%d", len(s.order)+1)
		}
		s.order = append(s.order, id)
		s.objects[id] = &object{id: id, qType: info.Info.Type, props: params.Prop}
		resp["result"] = returnOf("GenericObject", s.bind(id), id)
	case "GetProperties":
		obj, ok := s.objects[s.handles[req.Handle]]
		if !ok {
			resp["error"] = map[string]any{"code": -32602, "message": "Invalid handle"}
			break
		}
		resp["result"] = map[string]any{"qProp": obj.props}
	case "SetProperties":
		obj, ok := s.objects[s.handles[req.Handle]]
		if !ok {
			resp["error"] = map[string]any{"code": -32602, "message": "Invalid handle"}
			break
		}
		obj.props = append(json.RawMessage(nil), params.Prop...)
		resp["result"] = map[string]any{}
		resp["change"] = []int{req.Handle}
	default:
		resp["error"] = map[string]any{"code": -32601, "message": "Method not found"}
	}
	return resp
}

func (s *Server) bind(id string) int {
	h := s.nextHandle
	s.nextHandle++
	s.handles[h] = id
	return h
}

func returnOf(qType string, handle int, genericID string) map[string]any {
	return map[string]any{"qReturn": map[string]any{"qType": qType, "qHandle": handle, "qGenericId": genericID}}
}

func typeFor(method string) string {
	switch method {
	case "GetMeasure":
		return "GenericMeasure"
	case "GetDimension":
		return "GenericDimension"
	default:
		return "GenericObject"
	}
}
