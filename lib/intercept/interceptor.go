// Package intercept defines what the agent runs around an instrumented
// method, and where.
//
// This file contains the interceptor capability shapes. An Interceptor is
// exactly one of StaticMethodInterceptor, ConstructorInterceptor or
// InstanceMethodInterceptor.
package intercept

import (
	"errors"
	"fmt"

	"github.com/snowmerak/agentbridge/lib/instrument"
)

// Interceptor is any value implementing one of the three capability shapes.
type Interceptor any

// BeforeResult lets a before hook short-circuit the intercepted method.
type BeforeResult struct {
	skip   bool
	result any
}

// SetResult makes the intercepted method return result without running.
func (r *BeforeResult) SetResult(result any) {
	r.skip = true
	r.result = result
}

// Skipped reports whether SetResult was called.
func (r *BeforeResult) Skipped() bool {
	return r.skip
}

// Result returns the replacement return value.
func (r *BeforeResult) Result() any {
	return r.result
}

// StaticMethodInterceptor runs around static methods.
type StaticMethodInterceptor interface {
	Before(class *instrument.TypeDescription, method *instrument.MethodDescription, args []any, result *BeforeResult) error
	After(class *instrument.TypeDescription, method *instrument.MethodDescription, args []any, ret any) (any, error)
	OnThrow(class *instrument.TypeDescription, method *instrument.MethodDescription, args []any, cause error)
}

// ConstructorInterceptor runs after a constructor completed.
type ConstructorInterceptor interface {
	OnConstruct(obj any, args []any) error
}

// InstanceMethodInterceptor runs around instance methods.
type InstanceMethodInterceptor interface {
	Before(obj any, method *instrument.MethodDescription, args []any, result *BeforeResult) error
	After(obj any, method *instrument.MethodDescription, args []any, ret any) (any, error)
	OnThrow(obj any, method *instrument.MethodDescription, args []any, cause error)
}

// KindOf reports which capability i implements. ok is false when i
// implements none of them.
func KindOf(i Interceptor) (kind Kind, ok bool) {
	switch i.(type) {
	case StaticMethodInterceptor:
		return KindStaticMethod, true
	case ConstructorInterceptor:
		return KindConstructor, true
	case InstanceMethodInterceptor:
		return KindInstanceMethod, true
	}
	return 0, false
}

// ErrHookPanic is the cause recorded when a hook panicked with a non-error
// value.
var ErrHookPanic = errors.New("intercept: hook panicked")

// HookError reports a failure raised by an interceptor hook. It unwraps to
// the original cause.
type HookError struct {
	Hook        string
	Interceptor string
	Cause       error
}

func (e *HookError) Error() string {
	if e.Interceptor == "" {
		return fmt.Sprintf("intercept: %s hook failed: %v", e.Hook, e.Cause)
	}
	return fmt.Sprintf("intercept: %s hook of %s failed: %v", e.Hook, e.Interceptor, e.Cause)
}

func (e *HookError) Unwrap() error {
	return e.Cause
}

// RecoverHook converts a panic in progress into a *HookError stored in
// *errp. Use it as a deferred call around foreign hook invocations.
func RecoverHook(hook, interceptor string, errp *error) {
	r := recover()
	if r == nil {
		return
	}
	cause, ok := r.(error)
	if !ok {
		cause = fmt.Errorf("%w: %v", ErrHookPanic, r)
	}
	*errp = &HookError{Hook: hook, Interceptor: interceptor, Cause: cause}
}
