package fn

import (
	"errors"
	"fmt"
	"reflect"
	"unicode"
	"unicode/utf8"

	"github.com/progrium/postbus-go/bus"
)

// HandlerFrom uses reflection to return a handler from either a function or
// methods from a struct. When a struct is used, HandlerFrom creates a RespondMux
// registering each method as a handler using its method name, and again with
// the first letter lowered ("Echo" and "echo") since JavaScript peers name
// commands that way. From there, methods are treated just like functions.
//
// A function taking one parameter gets the whole payload decoded into it. A
// function taking several expects the payload to be an array with one element
// per parameter. A function taking none ignores the payload. Functions can
// opt-in to take a final Call pointer argument, allowing the handler to give it
// the Call value being processed. Functions can return nothing which the handler
// returns as nil, or a single value which can be an error, or a value and an
// error. In the latter case, the value is returned if the error is nil,
// otherwise just the error is returned.
//
// Structs that implement the Handler interface will be added as a catch-all
// handler along with their individual methods.
func HandlerFrom(v interface{}) bus.Handler {
	rv := reflect.Indirect(reflect.ValueOf(v))
	switch rv.Type().Kind() {
	case reflect.Func:
		return fromFunc(v, nil)
	case reflect.Struct:
		return fromMethods(v)
	default:
		panic("must be func or struct")
	}
}

// Args is the payload for calls to handlers of functions taking more than one
// parameter. More specific slice types ([]int{}, etc) work too.
type Args []interface{}

var callType = reflect.TypeOf(&bus.Call{})

func fromMethods(rcvr interface{}) bus.Handler {
	t := reflect.TypeOf(rcvr)
	mux := bus.NewRespondMux()
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		if m.Name == "RespondRPC" {
			continue
		}
		h := fromFunc(m.Func.Interface(), rcvr)
		mux.Handle(m.Name, h)
		if alias := lowerFirst(m.Name); alias != m.Name {
			mux.Handle(alias, h)
		}
	}
	if h, ok := rcvr.(bus.Handler); ok {
		mux.Handle("", h)
	}
	return mux
}

func lowerFirst(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	return string(unicode.ToLower(r)) + s[n:]
}

func fromFunc(fn_ interface{}, rcvr_ interface{}) bus.Handler {
	fn := reflect.ValueOf(fn_)
	rcvr := reflect.ValueOf(rcvr_)
	fntyp := fn.Type()

	// parameter types the payload is decoded into
	var in []reflect.Type
	for i := 0; i < fntyp.NumIn(); i++ {
		in = append(in, fntyp.In(i))
	}
	if rcvr.IsValid() {
		in = in[1:]
	}
	withCall := len(in) > 0 && in[len(in)-1] == callType
	if withCall {
		in = in[:len(in)-1]
	}

	return bus.HandlerFunc(func(r bus.Responder, c *bus.Call) {
		defer func() {
			if p := recover(); p != nil {
				r.Return(fmt.Errorf("panic: %s", p))
			}
		}()

		args, err := argsFrom(c.Payload, in)
		if err != nil {
			r.Return(err)
			return
		}

		var fnParams []reflect.Value
		if rcvr.IsValid() {
			fnParams = append(fnParams, rcvr)
		}
		fnParams = append(fnParams, args...)
		if withCall {
			fnParams = append(fnParams, reflect.ValueOf(c))
		}

		ret, err := ParseReturn(fn.Call(fnParams))
		if err != nil {
			r.Return(err)
			return
		}
		switch len(ret) {
		case 0:
			r.Return(nil)
		case 1:
			r.Return(ret[0])
		default:
			r.Return(ret)
		}
	})
}

// argsFrom spreads a payload over parameters of the given types.
func argsFrom(payload interface{}, in []reflect.Type) ([]reflect.Value, error) {
	switch len(in) {
	case 0:
		return nil, nil
	case 1:
		v, err := decodeArg(payload, in[0])
		if err != nil {
			return nil, err
		}
		return []reflect.Value{v}, nil
	}
	rv := reflect.ValueOf(payload)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, fmt.Errorf("fn: expected %d arguments in an array", len(in))
	}
	if rv.Len() < len(in) {
		return nil, errors.New("fn: too few input arguments")
	}
	if rv.Len() > len(in) {
		return nil, errors.New("fn: too many input arguments")
	}
	args := make([]interface{}, rv.Len())
	for i := range args {
		args[i] = rv.Index(i).Interface()
	}
	return argsTo(in, args)
}
