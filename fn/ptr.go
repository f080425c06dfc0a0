package fn

import (
	"context"
	"errors"
	"reflect"

	"github.com/progrium/postbus-go/bus"
	"github.com/rs/xid"
)

// ErrUnbound is returned when calling a Ptr that has no Caller.
var ErrUnbound = errors.New("fn: ptr has no caller")

// Ptr passes a function to the other end of a bus. The sender registers the
// function under a generated command and sends the Ptr, which travels as
// {"$fnptr": command}. The receiver binds it to its Caller and calls it like
// any other command.
type Ptr struct {
	Ptr    string     `json:"$fnptr" mapstructure:"$fnptr"`
	Caller bus.Caller `json:"-" mapstructure:"-"`
	fn     interface{}
}

// Call calls the function behind the pointer on the end that sent it.
func (p *Ptr) Call(ctx context.Context, payload, reply interface{}) (*bus.Reply, error) {
	if p.Caller == nil {
		return nil, ErrUnbound
	}
	return p.Caller.Call(ctx, p.Ptr, payload, reply)
}

// Callback returns a Ptr for fn, which can be anything HandlerFrom accepts.
// It must be registered with RegisterPtrs before it is sent.
func Callback(fn interface{}) *Ptr {
	return &Ptr{
		Ptr: xid.New().String(),
		fn:  fn,
	}
}

// SetCallers binds every Ptr found in v to c.
func SetCallers(v interface{}, c bus.Caller) {
	for _, ptr := range PtrsFrom(v) {
		ptr.Caller = c
	}
}

// RegisterPtrs registers a handler on m for every callback found in v.
func RegisterPtrs(m *bus.RespondMux, v interface{}) {
	for _, ptr := range PtrsFrom(v) {
		if ptr.fn == nil {
			continue
		}
		if h, name := m.Match(ptr.Ptr); h == nil || name != ptr.Ptr {
			m.Handle(ptr.Ptr, HandlerFrom(ptr.fn))
		}
	}
}

// UnregisterPtrs removes the handlers RegisterPtrs added for v.
func UnregisterPtrs(m *bus.RespondMux, v interface{}) {
	for _, ptr := range PtrsFrom(v) {
		if _, name := m.Match(ptr.Ptr); name == ptr.Ptr {
			m.Remove(ptr.Ptr)
		}
	}
}

var ptrType = reflect.TypeOf(&Ptr{})

// PtrsFrom returns the non-nil Ptrs reachable from v through pointers,
// interfaces, exported struct fields, maps and slices.
func PtrsFrom(v interface{}) (ptrs []*Ptr) {
	walk(reflect.ValueOf(v), func(p *Ptr) {
		ptrs = append(ptrs, p)
	})
	return
}

func walk(v reflect.Value, visit func(*Ptr)) {
	if !v.IsValid() {
		return
	}
	if v.Type() == ptrType {
		if !v.IsNil() {
			visit(v.Interface().(*Ptr))
		}
		return
	}
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface:
		if !v.IsNil() {
			walk(v.Elem(), visit)
		}
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			if t.Field(i).IsExported() {
				walk(v.Field(i), visit)
			}
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			walk(iter.Value(), visit)
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			walk(v.Index(i), visit)
		}
	}
}
