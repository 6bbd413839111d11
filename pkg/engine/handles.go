package engine

import (
	"context"
	"encoding/json"
	"fmt"
)

// ObjectInfo identifies an object listed by GetAllInfos.
type ObjectInfo struct {
	ID   string `json:"qId"`
	Type string `json:"qType"`
}

type handleRef struct {
	Type      string `json:"qType"`
	Handle    *int   `json:"qHandle"`
	GenericID string `json:"qGenericId"`
}

type returnEnvelope struct {
	Return handleRef `json:"qReturn"`
}

// Global is the session-level engine object.
type Global struct {
	session *Session
}

// EngineVersion returns the engine component version.
func (g *Global) EngineVersion(ctx context.Context) (string, error) {
	var out struct {
		Version struct {
			ComponentVersion string `json:"qComponentVersion"`
		} `json:"qVersion"`
	}
	if err := g.session.Call(ctx, globalHandle, "EngineVersion", nil, &out); err != nil {
		return "", err
	}
	return out.Version.ComponentVersion, nil
}

// OpenDoc opens the app with the given id.
func (g *Global) OpenDoc(ctx context.Context, appID string) (*Doc, error) {
	ref, err := g.session.open(ctx, globalHandle, "OpenDoc", map[string]any{"qDocName": appID}, appID)
	if err != nil {
		return nil, err
	}
	return &Doc{session: g.session, handle: *ref.Handle, ID: appID}, nil
}

// Doc is an opened app.
type Doc struct {
	session *Session
	handle  int
	ID      string
}

// GetAllInfos lists every object in the app.
func (d *Doc) GetAllInfos(ctx context.Context) ([]ObjectInfo, error) {
	var out struct {
		Infos []ObjectInfo `json:"qInfos"`
	}
	if err := d.session.Call(ctx, d.handle, "GetAllInfos", nil, &out); err != nil {
		return nil, err
	}
	return out.Infos, nil
}

// GetObject returns the generic object with the given id.
func (d *Doc) GetObject(ctx context.Context, id string) (*Object, error) {
	return d.object(ctx, "GetObject", map[string]any{"qId": id}, id)
}

// GetMeasure returns the master measure with the given id.
func (d *Doc) GetMeasure(ctx context.Context, id string) (*Object, error) {
	return d.object(ctx, "GetMeasure", map[string]any{"qId": id}, id)
}

// GetDimension returns the master dimension with the given id.
func (d *Doc) GetDimension(ctx context.Context, id string) (*Object, error) {
	return d.object(ctx, "GetDimension", map[string]any{"qId": id}, id)
}

// CreateObject creates a generic object from props.
func (d *Doc) CreateObject(ctx context.Context, props any) (*Object, error) {
	return d.object(ctx, "CreateObject", map[string]any{"qProp": props}, "")
}

func (d *Doc) object(ctx context.Context, method string, params map[string]any, id string) (*Object, error) {
	ref, err := d.session.open(ctx, d.handle, method, params, id)
	if err != nil {
		return nil, err
	}
	if ref.GenericID != "" {
		id = ref.GenericID
	}
	return &Object{session: d.session, handle: *ref.Handle, ID: id, Type: ref.Type}, nil
}

// Object is a generic object, measure or dimension handle.
type Object struct {
	session *Session
	handle  int
	ID      string
	Type    string
}

// GetProperties decodes the object's properties into v.
func (o *Object) GetProperties(ctx context.Context, v any) error {
	var out struct {
		Prop json.RawMessage `json:"qProp"`
	}
	if err := o.session.Call(ctx, o.handle, "GetProperties", nil, &out); err != nil {
		return err
	}
	if len(out.Prop) == 0 {
		return fmt.Errorf("GetProperties %q: empty qProp", o.ID)
	}
	if err := json.Unmarshal(out.Prop, v); err != nil {
		return fmt.Errorf("decode properties of %q: %w", o.ID, err)
	}
	return nil
}

// SetProperties replaces the object's properties with props.
func (o *Object) SetProperties(ctx context.Context, props any) error {
	return o.session.Call(ctx, o.handle, "SetProperties", map[string]any{"qProp": props}, nil)
}

// open calls a method that returns a qReturn handle.
func (s *Session) open(ctx context.Context, handle int, method string, params map[string]any, id string) (handleRef, error) {
	var out returnEnvelope
	if err := s.Call(ctx, handle, method, params, &out); err != nil {
		return handleRef{}, err
	}
	if out.Return.Handle == nil {
		return handleRef{}, fmt.Errorf("%s %q: %w", method, id, ErrObjectNotFound)
	}
	return out.Return, nil
}
