package skywalking

import (
	"fmt"
	"log/slog"
	"reflect"

	"github.com/snowmerak/agentbridge/lib/intercept"
	"github.com/snowmerak/agentbridge/lib/matcher"
	"github.com/snowmerak/agentbridge/lib/skywalking/swapi"
)

// AdaptDefinition translates a foreign plugin define. The define is reached
// by method name, so it may come from a module built against a different
// copy of swapi.
//
// Points are ordered static methods, constructors, instance methods. If the
// class predicate cannot be read the definition gets NameMatcher{}; if any
// point cannot be read the definition gets no points.
func AdaptDefinition(define any, logger *slog.Logger) intercept.Definition {
	if logger == nil {
		logger = slog.Default()
	}
	v := reflect.ValueOf(define)
	typeName := fmt.Sprintf("%T", define)

	def := intercept.Definition{Class: matcher.NameMatcher{}, Points: []intercept.Point{}}

	if out, err := callGetter(v, "EnhanceClass"); err != nil {
		logger.Warn("Cannot read class match of plugin define", "define", typeName, "error", err)
	} else {
		def.Class = AdaptClassMatch(out.Interface())
	}

	points, err := adaptPoints(v)
	if err != nil {
		logger.Warn("Cannot read intercept points of plugin define", "define", typeName, "error", err)
		return def
	}
	def.Points = points
	return def
}

func callGetter(v reflect.Value, name string) (out reflect.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", name, r)
		}
	}()

	if !v.IsValid() {
		return reflect.Value{}, fmt.Errorf("nil define")
	}
	m := v.MethodByName(name)
	if !m.IsValid() {
		return reflect.Value{}, fmt.Errorf("%s has no method %s", v.Type(), name)
	}
	if m.Type().NumIn() != 0 || m.Type().NumOut() != 1 {
		return reflect.Value{}, fmt.Errorf("%s.%s has signature %s", v.Type(), name, m.Type())
	}
	return m.Call(nil)[0], nil
}

func adaptPoints(v reflect.Value) (points []intercept.Point, err error) {
	defer func() {
		if r := recover(); r != nil {
			points, err = nil, fmt.Errorf("intercept point panicked: %v", r)
		}
	}()

	static, err := collectPoints(v, "StaticMethodsInterceptPoints", func(e any) (intercept.Point, bool) {
		p, ok := e.(swapi.StaticMethodsInterceptPoint)
		if !ok {
			return intercept.Point{}, false
		}
		pt := intercept.StaticMethodPoint(p.MethodsInterceptor(), p.MethodsMatcher())
		pt.OverrideArgs = p.IsOverrideArgs()
		return pt, true
	})
	if err != nil {
		return nil, err
	}

	ctors, err := collectPoints(v, "ConstructorsInterceptPoints", func(e any) (intercept.Point, bool) {
		p, ok := e.(swapi.ConstructorInterceptPoint)
		if !ok {
			return intercept.Point{}, false
		}
		return intercept.ConstructorPoint(p.ConstructorInterceptor(), p.ConstructorMatcher()), true
	})
	if err != nil {
		return nil, err
	}

	instance, err := collectPoints(v, "InstanceMethodsInterceptPoints", func(e any) (intercept.Point, bool) {
		p, ok := e.(swapi.InstanceMethodsInterceptPoint)
		if !ok {
			return intercept.Point{}, false
		}
		pt := intercept.InstanceMethodPoint(p.MethodsInterceptor(), p.MethodsMatcher())
		pt.OverrideArgs = p.IsOverrideArgs()
		return pt, true
	})
	if err != nil {
		return nil, err
	}

	points = make([]intercept.Point, 0, len(static)+len(ctors)+len(instance))
	points = append(points, static...)
	points = append(points, ctors...)
	points = append(points, instance...)
	return points, nil
}

func collectPoints(v reflect.Value, getter string, convert func(any) (intercept.Point, bool)) ([]intercept.Point, error) {
	out, err := callGetter(v, getter)
	if err != nil {
		return nil, err
	}
	if isNil(out) {
		return nil, nil
	}
	if out.Kind() == reflect.Interface {
		out = out.Elem()
	}
	if out.Kind() != reflect.Slice && out.Kind() != reflect.Array {
		return nil, fmt.Errorf("%s returned %s", getter, out.Type())
	}

	points := make([]intercept.Point, 0, out.Len())
	for i := range out.Len() {
		e := out.Index(i)
		if isNil(e) {
			return nil, fmt.Errorf("%s: element %d is nil", getter, i)
		}
		p, ok := convert(e.Interface())
		if !ok {
			return nil, fmt.Errorf("%s: element %d is %T", getter, i, e.Interface())
		}
		points = append(points, p)
	}
	return points, nil
}

func isNil(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Invalid:
		return true
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return v.IsNil()
	}
	return false
}
