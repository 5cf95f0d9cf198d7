package skywalking

import (
	"errors"
	"log/slog"
	"reflect"

	"github.com/snowmerak/agentbridge/lib/instrument"
	"github.com/snowmerak/agentbridge/lib/intercept"
	"github.com/snowmerak/agentbridge/lib/skywalking/swapi"
)

// ErrNotEnhanced is the cause of a hook failure when the intercepted object
// carries no dynamic field.
var ErrNotEnhanced = errors.New("skywalking: object is not an enhanced instance")

// argTypes mirrors the parameter types of a call. Nil arguments have a nil
// type.
func argTypes(args []any) []reflect.Type {
	types := make([]reflect.Type, len(args))
	for i, a := range args {
		if a != nil {
			types[i] = reflect.TypeOf(a)
		}
	}
	return types
}

type fieldInstance struct {
	h instrument.FieldHolder
}

func (f fieldInstance) GetSkyWalkingDynamicField() any {
	v, _ := f.h.LoadField(swapi.EnhancedFieldName)
	return v
}

func (f fieldInstance) SetSkyWalkingDynamicField(v any) {
	f.h.StoreField(swapi.EnhancedFieldName, v)
}

// enhancedInstance views obj through the dynamic field Transform added.
func enhancedInstance(obj any) (swapi.EnhancedInstance, error) {
	switch o := obj.(type) {
	case swapi.EnhancedInstance:
		return o, nil
	case instrument.FieldHolder:
		return fieldInstance{h: o}, nil
	default:
		return nil, ErrNotEnhanced
	}
}

func hookError(hook, name string, err error) error {
	return &intercept.HookError{Hook: hook, Interceptor: name, Cause: err}
}

// ignorePanic keeps a failing exception handler from replacing the error
// the host is already propagating.
func ignorePanic() {
	_ = recover()
}

type staticInterceptor struct {
	name string
	i    swapi.StaticMethodsAroundInterceptor
}

// AdaptStaticInterceptor wraps a foreign static methods interceptor.
func AdaptStaticInterceptor(name string, i swapi.StaticMethodsAroundInterceptor) intercept.StaticMethodInterceptor {
	return &staticInterceptor{name: name, i: i}
}

func (a *staticInterceptor) Before(class *instrument.TypeDescription, method *instrument.MethodDescription, args []any, result *intercept.BeforeResult) (err error) {
	defer intercept.RecoverHook("before", a.name, &err)

	r := swapi.NewMethodInterceptResult()
	if err := a.i.BeforeMethod(class, method, args, argTypes(args), r); err != nil {
		return hookError("before", a.name, err)
	}
	if !r.IsContinue() && result != nil {
		result.SetResult(r.ReturnValue())
	}
	return nil
}

func (a *staticInterceptor) After(class *instrument.TypeDescription, method *instrument.MethodDescription, args []any, ret any) (out any, err error) {
	defer intercept.RecoverHook("after", a.name, &err)

	out, err = a.i.AfterMethod(class, method, args, argTypes(args), ret)
	if err != nil {
		return ret, hookError("after", a.name, err)
	}
	return out, nil
}

func (a *staticInterceptor) OnThrow(class *instrument.TypeDescription, method *instrument.MethodDescription, args []any, cause error) {
	defer ignorePanic()
	a.i.HandleMethodException(class, method, args, argTypes(args), cause)
}

type constructorInterceptor struct {
	name string
	i    swapi.InstanceConstructorInterceptor
}

// AdaptConstructorInterceptor wraps a foreign constructor interceptor.
func AdaptConstructorInterceptor(name string, i swapi.InstanceConstructorInterceptor) intercept.ConstructorInterceptor {
	return &constructorInterceptor{name: name, i: i}
}

func (a *constructorInterceptor) OnConstruct(obj any, args []any) (err error) {
	defer intercept.RecoverHook("construct", a.name, &err)

	inst, err := enhancedInstance(obj)
	if err != nil {
		return hookError("construct", a.name, err)
	}
	if err := a.i.OnConstruct(inst, args); err != nil {
		return hookError("construct", a.name, err)
	}
	return nil
}

type instanceInterceptor struct {
	name string
	i    swapi.InstanceMethodsAroundInterceptor
}

// AdaptInstanceInterceptor wraps a foreign instance methods interceptor.
func AdaptInstanceInterceptor(name string, i swapi.InstanceMethodsAroundInterceptor) intercept.InstanceMethodInterceptor {
	return &instanceInterceptor{name: name, i: i}
}

func (a *instanceInterceptor) Before(obj any, method *instrument.MethodDescription, args []any, result *intercept.BeforeResult) (err error) {
	defer intercept.RecoverHook("before", a.name, &err)

	inst, err := enhancedInstance(obj)
	if err != nil {
		return hookError("before", a.name, err)
	}
	r := swapi.NewMethodInterceptResult()
	if err := a.i.BeforeMethod(inst, method, args, argTypes(args), r); err != nil {
		return hookError("before", a.name, err)
	}
	if !r.IsContinue() && result != nil {
		result.SetResult(r.ReturnValue())
	}
	return nil
}

func (a *instanceInterceptor) After(obj any, method *instrument.MethodDescription, args []any, ret any) (out any, err error) {
	defer intercept.RecoverHook("after", a.name, &err)

	inst, err := enhancedInstance(obj)
	if err != nil {
		return ret, hookError("after", a.name, err)
	}
	out, err = a.i.AfterMethod(inst, method, args, argTypes(args), ret)
	if err != nil {
		return ret, hookError("after", a.name, err)
	}
	return out, nil
}

func (a *instanceInterceptor) OnThrow(obj any, method *instrument.MethodDescription, args []any, cause error) {
	defer ignorePanic()

	inst, err := enhancedInstance(obj)
	if err != nil {
		// The error hook still runs, against a detached field that starts empty.
		slog.Default().Debug("Exception hook on unenhanced object", "interceptor", a.name, "type", reflect.TypeOf(obj))
		inst = fieldInstance{h: &instrument.DynamicFields{}}
	}
	a.i.HandleMethodException(inst, method, args, argTypes(args), cause)
}
