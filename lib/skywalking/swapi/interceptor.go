package swapi

import (
	"reflect"

	"github.com/snowmerak/agentbridge/lib/instrument"
)

// MethodInterceptResult lets BeforeMethod replace the intercepted call.
type MethodInterceptResult struct {
	isContinue bool
	ret        any
}

// NewMethodInterceptResult returns a result that lets the call continue.
func NewMethodInterceptResult() *MethodInterceptResult {
	return &MethodInterceptResult{isContinue: true}
}

// DefineReturnValue skips the intercepted method and returns ret instead.
func (r *MethodInterceptResult) DefineReturnValue(ret any) {
	r.isContinue = false
	r.ret = ret
}

// IsContinue reports whether the intercepted method should run.
func (r *MethodInterceptResult) IsContinue() bool {
	return r.isContinue
}

// ReturnValue is the value set by DefineReturnValue.
func (r *MethodInterceptResult) ReturnValue() any {
	return r.ret
}

// StaticMethodsAroundInterceptor runs around static methods.
type StaticMethodsAroundInterceptor interface {
	BeforeMethod(class *instrument.TypeDescription, method *instrument.MethodDescription, args []any, argTypes []reflect.Type, result *MethodInterceptResult) error
	AfterMethod(class *instrument.TypeDescription, method *instrument.MethodDescription, args []any, argTypes []reflect.Type, ret any) (any, error)
	HandleMethodException(class *instrument.TypeDescription, method *instrument.MethodDescription, args []any, argTypes []reflect.Type, err error)
}

// InstanceConstructorInterceptor runs after a constructor.
type InstanceConstructorInterceptor interface {
	OnConstruct(obj EnhancedInstance, args []any) error
}

// InstanceMethodsAroundInterceptor runs around instance methods.
type InstanceMethodsAroundInterceptor interface {
	BeforeMethod(obj EnhancedInstance, method *instrument.MethodDescription, args []any, argTypes []reflect.Type, result *MethodInterceptResult) error
	AfterMethod(obj EnhancedInstance, method *instrument.MethodDescription, args []any, argTypes []reflect.Type, ret any) (any, error)
	HandleMethodException(obj EnhancedInstance, method *instrument.MethodDescription, args []any, argTypes []reflect.Type, err error)
}
