// Command skywalking is a SkyWalking agent module. Build it with
//
//	go build -buildmode=plugin -o skywalking-agent.so ./plugins/skywalking
//
// and point the host's ext_agent configuration at the result.
package main

import (
	"fmt"
	"log/slog"
	"reflect"

	"github.com/snowmerak/agentbridge/lib/instrument"
	"github.com/snowmerak/agentbridge/lib/matcher"
	"github.com/snowmerak/agentbridge/lib/skywalking/swapi"
)

const httpInterceptor = "plugin.http.ClientInterceptor"

// Premain is looked up by the host as swapi.PremainSymbol.
func Premain(args string, inst instrument.Instrumentation) error {
	defines := []swapi.ClassEnhancePluginDefine{
		&swapi.PluginDefine{
			Class: swapi.ByName("net.http.Client"),
			Instance: []swapi.InstanceMethodsInterceptPoint{
				swapi.MethodsPoint{Matcher: matcher.MethodNamed("Do"), Interceptor: httpInterceptor},
			},
		},
	}
	return swapi.Boot(inst, defines, func(matcher.Junction) error {
		slog.Warn("SkyWalking agent installed itself", "args", args)
		return nil
	})
}

// LoadInterceptor is looked up by the host as swapi.InterceptorLoaderSymbol.
func LoadInterceptor(name string) (any, error) {
	if name != httpInterceptor {
		return nil, fmt.Errorf("class not found: %s", name)
	}
	return clientInterceptor{}, nil
}

type clientInterceptor struct{}

func (clientInterceptor) BeforeMethod(obj swapi.EnhancedInstance, method *instrument.MethodDescription, args []any, _ []reflect.Type, _ *swapi.MethodInterceptResult) error {
	obj.SetSkyWalkingDynamicField(method.Name)
	slog.Info("http client call", "method", method.Name, "args", len(args))
	return nil
}

func (clientInterceptor) AfterMethod(_ swapi.EnhancedInstance, _ *instrument.MethodDescription, _ []any, _ []reflect.Type, ret any) (any, error) {
	return ret, nil
}

func (clientInterceptor) HandleMethodException(_ swapi.EnhancedInstance, method *instrument.MethodDescription, _ []any, _ []reflect.Type, err error) {
	slog.Error("http client call failed", "method", method.Name, "error", err)
}

func main() {}
