package fn

import (
	"fmt"
	"reflect"

	"github.com/progrium/postbus-go/bus"
)

var errorInterface = reflect.TypeOf((*error)(nil)).Elem()

// argsTo decodes each argument into the parameter type at the same index.
// Arguments are decoded the way payloads are, so generic maps become structs
// and float64 numbers become ints.
func argsTo(in []reflect.Type, args []any) ([]reflect.Value, error) {
	fnParams := make([]reflect.Value, len(args))
	for idx, param := range args {
		v, err := decodeArg(param, in[idx])
		if err != nil {
			return nil, fmt.Errorf("fn: argument %d: %w", idx, err)
		}
		fnParams[idx] = v
	}
	return fnParams, nil
}

func decodeArg(param any, t reflect.Type) (reflect.Value, error) {
	if param == nil {
		return reflect.Zero(t), nil
	}
	if pv := reflect.ValueOf(param); pv.Type().AssignableTo(t) {
		return pv, nil
	}
	arg := reflect.New(t)
	if err := bus.DecodePayload(param, arg.Interface()); err != nil {
		return reflect.Value{}, err
	}
	return arg.Elem(), nil
}

// ParseReturn splits the results of reflect.Call() into the values, and
// possibly an error.
// If the last value is a non-nil error, this will return `nil, err`.
// If the last value is a nil error it will be removed from the value list.
// Any remaining values will be converted and returned as `any` typed values.
func ParseReturn(ret []reflect.Value) ([]any, error) {
	if len(ret) == 0 {
		return nil, nil
	}
	last := ret[len(ret)-1]
	if last.Type().Implements(errorInterface) {
		if !last.IsNil() {
			return nil, last.Interface().(error)
		}
		ret = ret[:len(ret)-1]
	}
	out := make([]any, len(ret))
	for i, r := range ret {
		out[i] = r.Interface()
	}
	return out, nil
}
