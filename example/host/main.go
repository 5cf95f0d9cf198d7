// Command host loads the SkyWalking agent module built from
// ../plugins/skywalking as a Go plugin and reports what it bridged.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/snowmerak/agentbridge/lib/classpath"
	"github.com/snowmerak/agentbridge/lib/extagent"
	"github.com/snowmerak/agentbridge/lib/instrument"
	"github.com/snowmerak/agentbridge/lib/intercept"
	_ "github.com/snowmerak/agentbridge/lib/skywalking"
	"github.com/snowmerak/agentbridge/lib/skywalking/swapi"
)

type client struct {
	instrument.DynamicFields
}

func main() {
	configPath := flag.String("config", "agent.hcl", "host configuration file")
	agentDir := flag.String("agent-dir", ".", "directory holding ext agent modules")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)

	cfg, err := extagent.LoadConfigFile(*configPath)
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	m := extagent.NewManager(
		extagent.WithClassLoader(classpath.New()),
		extagent.WithExtAgentDir(*agentDir),
		extagent.WithLogger(logger),
	)
	state := m.Init(context.Background(), cfg, instrument.NewAdviceTable())
	logger.Info("Extension bridge initialized", "state", state.String(), "providers", m.Providers())
	if state != extagent.StateReady {
		return
	}

	td := &instrument.TypeDescription{Name: "net.http.Client"}
	if !m.BuildMatch().Matches(td) {
		logger.Warn("No plugin matches", "class", td.Name)
		return
	}

	resp := m.Transform(instrument.NewBuilder(td), td, nil)
	for _, def := range resp.Definitions {
		for _, p := range def.Points {
			i, ok := m.NewInterceptor(p.Interceptor)
			if !ok {
				continue
			}
			hook, ok := i.(intercept.InstanceMethodInterceptor)
			if !ok {
				continue
			}

			obj := &client{}
			md := &instrument.MethodDescription{Owner: td.Name, Name: "Do"}
			if err := hook.Before(obj, md, []any{"GET /"}, &intercept.BeforeResult{}); err != nil {
				logger.Error("Interceptor failed", "interceptor", p.Interceptor, "error", err)
				continue
			}
			field, _ := obj.LoadField(swapi.EnhancedFieldName)
			logger.Info("Interceptor ran", "interceptor", p.Interceptor, "field", field)
		}
	}
}
