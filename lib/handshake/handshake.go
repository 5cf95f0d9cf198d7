package handshake

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/snowmerak/agentbridge/lib/instrument"
)

var (
	// ErrNotInterrupted means the foreign bootstrap returned normally, so
	// the captured join point was never reached. The foreign agent most
	// likely changed incompatibly.
	ErrNotInterrupted = errors.New("handshake: bootstrap completed without reaching the join point")
	// ErrBootstrap wraps any failure of the foreign bootstrap other than the
	// handshake's own sentinel.
	ErrBootstrap = errors.New("handshake: bootstrap failed")
	// ErrResolve means the receiver was captured but a method could not be
	// resolved on it.
	ErrResolve = errors.New("handshake: method resolution failed")
	// ErrNotBridged is returned by Call before a successful handshake.
	ErrNotBridged = errors.New("handshake: not bridged")
	// ErrUnknownMethod is returned by Call for a method that was not
	// requested in New.
	ErrUnknownMethod = errors.New("handshake: unknown method")
	// ErrAlreadyArmed is returned by Arm when called twice.
	ErrAlreadyArmed = errors.New("handshake: already armed")
)

// Status is the state of a handshake.
type Status int32

const (
	StatusIdle Status = iota
	StatusArmed
	StatusFired
	StatusBridged
	StatusFailedResolve
)

// String returns the string representation of Status
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusArmed:
		return "armed"
	case StatusFired:
		return "fired"
	case StatusBridged:
		return "bridged"
	case StatusFailedResolve:
		return "failed-resolve"
	default:
		return "unknown"
	}
}

// captured is written once by the advice and read-only afterwards.
type captured struct {
	receiver any
	methods  map[string]reflect.Value
	err      error
}

// Handshake is a one-shot capture of the receiver of a join point.
//
// Arm installs advice on the join point. The first time the foreign code
// enters it, the advice stores the receiver, resolves the requested methods
// on it by reflection and returns a *Sentinel, which unwinds the foreign
// bootstrap. Run drives the bootstrap and interprets how it ended. After a
// successful handshake, Call invokes the captured methods directly.
type Handshake struct {
	target  instrument.JoinPoint
	methods []string
	token   string

	status atomic.Int32
	fired  atomic.Bool
	state  atomic.Pointer[captured]

	armMu  sync.Mutex
	remove func()
}

// New prepares a handshake on target that will resolve methods on the
// captured receiver.
func New(target instrument.JoinPoint, methods ...string) (*Handshake, error) {
	token, err := newToken()
	if err != nil {
		return nil, fmt.Errorf("handshake: generate token: %w", err)
	}
	return &Handshake{
		target:  target,
		methods: append([]string(nil), methods...),
		token:   token,
	}, nil
}

// Target returns the join point the handshake intercepts.
func (h *Handshake) Target() instrument.JoinPoint {
	return h.target
}

// Token returns the token carried by this handshake's sentinel.
func (h *Handshake) Token() string {
	return h.token
}

// Status returns the current state.
func (h *Handshake) Status() Status {
	return Status(h.status.Load())
}

// Receiver returns the captured receiver, or nil before the handshake fired.
func (h *Handshake) Receiver() any {
	if c := h.state.Load(); c != nil {
		return c.receiver
	}
	return nil
}

// Arm installs the capturing advice on inst.
func (h *Handshake) Arm(inst instrument.Instrumentation) error {
	h.armMu.Lock()
	defer h.armMu.Unlock()

	if h.remove != nil {
		return ErrAlreadyArmed
	}
	h.remove = inst.Advise(h.target, h.advice)
	h.status.CompareAndSwap(int32(StatusIdle), int32(StatusArmed))
	return nil
}

// Disarm detaches the advice. A fired handshake keeps its captured state.
func (h *Handshake) Disarm() {
	h.armMu.Lock()
	defer h.armMu.Unlock()

	if h.remove != nil {
		h.remove()
		h.remove = nil
	}
}

// advice fires at most once; later entries pass through untouched.
func (h *Handshake) advice(receiver any) error {
	if !h.fired.CompareAndSwap(false, true) {
		return nil
	}
	h.status.Store(int32(StatusFired))

	c := &captured{receiver: receiver, methods: make(map[string]reflect.Value, len(h.methods))}
	c.err = resolve(receiver, h.methods, c.methods)
	h.state.Store(c)

	if c.err != nil {
		h.status.Store(int32(StatusFailedResolve))
	} else {
		h.status.Store(int32(StatusBridged))
	}
	return &Sentinel{Token: h.token}
}

func resolve(receiver any, names []string, into map[string]reflect.Value) error {
	v := reflect.ValueOf(receiver)
	if !v.IsValid() {
		return fmt.Errorf("%w: nil receiver", ErrResolve)
	}
	for _, name := range names {
		m := v.MethodByName(name)
		if !m.IsValid() {
			return fmt.Errorf("%w: %s has no method %s", ErrResolve, v.Type(), name)
		}
		into[name] = m
	}
	return nil
}

// Run invokes the foreign bootstrap and reports whether the handshake
// completed. A nil error means the receiver was captured and every method
// resolved. The bootstrap must be the call path that reaches the armed join
// point.
func (h *Handshake) Run(bootstrap func() error) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if perr, ok := r.(error); ok {
			err = h.interpret(perr)
			return
		}
		err = fmt.Errorf("%w: panic: %v", ErrBootstrap, r)
	}()

	return h.interpret(bootstrap())
}

func (h *Handshake) interpret(err error) error {
	if err == nil {
		return ErrNotInterrupted
	}
	if !IsSentinel(err, h.token) {
		return fmt.Errorf("%w: %w", ErrBootstrap, err)
	}
	if c := h.state.Load(); c != nil && c.err != nil {
		return c.err
	}
	return nil
}

// Call invokes a captured method with args and returns its results.
// A panic inside the foreign method is returned as an error.
func (h *Handshake) Call(method string, args ...any) (out []any, err error) {
	c := h.state.Load()
	if c == nil || c.err != nil {
		return nil, ErrNotBridged
	}
	fn, ok := c.methods[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMethod, method)
	}

	in, err := callArgs(fn.Type(), args)
	if err != nil {
		return nil, fmt.Errorf("handshake: call %s: %w", method, err)
	}

	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("handshake: call %s: panic: %v", method, r)
		}
	}()

	results := fn.Call(in)
	out = make([]any, len(results))
	for i, r := range results {
		out[i] = r.Interface()
	}
	return out, nil
}

func callArgs(ft reflect.Type, args []any) ([]reflect.Value, error) {
	if ft.IsVariadic() || ft.NumIn() != len(args) {
		return nil, fmt.Errorf("want %d arguments, got %d", ft.NumIn(), len(args))
	}
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		pt := ft.In(i)
		if a == nil {
			switch pt.Kind() {
			case reflect.Interface, reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
				in[i] = reflect.Zero(pt)
				continue
			}
			return nil, fmt.Errorf("argument %d: nil for %s", i, pt)
		}
		v := reflect.ValueOf(a)
		if !v.Type().AssignableTo(pt) {
			return nil, fmt.Errorf("argument %d: %s is not assignable to %s", i, v.Type(), pt)
		}
		in[i] = v
	}
	return in, nil
}
