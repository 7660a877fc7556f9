// Package handler provides reflection-based handler execution for the taskqueue package.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"
)

// Handler holds metadata about a registered task handler.
type Handler struct {
	Fn          reflect.Value
	PayloadType reflect.Type
	HasContext  bool
	HasResult   bool

	// Timeout bounds a single invocation. Zero means no deadline.
	Timeout time.Duration
}

var (
	ctxType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errType = reflect.TypeOf((*error)(nil)).Elem()
)

// NewHandler creates a Handler from a function.
// The function must have signature: func(ctx context.Context, payload T) error
// or func(ctx context.Context, payload T) (R, error)
func NewHandler(fn any) (*Handler, error) {
	if fn == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}

	fnVal := reflect.ValueOf(fn)

	// Check for typed nil (e.g., var fn func() = nil)
	if !fnVal.IsValid() || (fnVal.Kind() == reflect.Func && fnVal.IsNil()) {
		return nil, fmt.Errorf("handler function cannot be nil")
	}

	fnType := fnVal.Type()

	if fnType.Kind() != reflect.Func {
		return nil, fmt.Errorf("handler must be a function")
	}

	h := &Handler{Fn: fnVal}

	numIn := fnType.NumIn()
	if numIn < 1 || numIn > 2 {
		return nil, fmt.Errorf("handler must have 1-2 arguments")
	}

	argIdx := 0
	if fnType.In(0).Implements(ctxType) {
		h.HasContext = true
		argIdx = 1
	}

	if argIdx < numIn {
		h.PayloadType = fnType.In(argIdx)
	}

	// Validate return type - allow error or (R, error)
	switch fnType.NumOut() {
	case 1:
		if !fnType.Out(0).Implements(errType) {
			return nil, fmt.Errorf("handler must return error")
		}
	case 2:
		if !fnType.Out(1).Implements(errType) {
			return nil, fmt.Errorf("handler must return (R, error)")
		}
		h.HasResult = true
	default:
		return nil, fmt.Errorf("handler must return error or (R, error)")
	}

	return h, nil
}

// Execute runs the handler with the given context and payload. For handlers
// returning (R, error), the result is JSON-marshalled and returned.
func (h *Handler) Execute(ctx context.Context, payload []byte) ([]byte, error) {
	if !h.Fn.IsValid() || h.Fn.IsNil() {
		return nil, fmt.Errorf("handler function is nil or invalid")
	}

	var args []reflect.Value

	if h.HasContext {
		args = append(args, reflect.ValueOf(ctx))
	}

	if h.PayloadType != nil {
		argVal := reflect.New(h.PayloadType)
		if err := json.Unmarshal(payload, argVal.Interface()); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
		args = append(args, argVal.Elem())
	}

	results := h.Fn.Call(args)

	if !h.HasResult {
		if !results[0].IsNil() {
			return nil, results[0].Interface().(error)
		}
		return nil, nil
	}

	if !results[1].IsNil() {
		return nil, results[1].Interface().(error)
	}

	out, err := json.Marshal(results[0].Interface())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return out, nil
}
