package swapi

import (
	"fmt"
	"maps"
	"slices"

	"github.com/snowmerak/agentbridge/lib/instrument"
	"github.com/snowmerak/agentbridge/lib/matcher"
)

// PluginFinder indexes plugin defines by the classes they enhance.
type PluginFinder struct {
	inst           instrument.Instrumentation
	nameMatch      map[string][]ClassEnhancePluginDefine
	signatureMatch []ClassEnhancePluginDefine
}

// NewPluginFinder indexes defines. Defines with a nil or unsupported
// ClassMatch are dropped.
func NewPluginFinder(inst instrument.Instrumentation, defines []ClassEnhancePluginDefine) *PluginFinder {
	f := &PluginFinder{inst: inst, nameMatch: make(map[string][]ClassEnhancePluginDefine)}
	for _, d := range defines {
		if d == nil {
			continue
		}
		switch m := d.EnhanceClass().(type) {
		case *NameMatch:
			f.nameMatch[m.ClassName()] = append(f.nameMatch[m.ClassName()], d)
		case IndirectMatch:
			f.signatureMatch = append(f.signatureMatch, d)
		}
	}
	return f
}

// BuildMatch returns the union of every plugin's class predicate. It is an
// instrumented join point: advice on PluginFinderBuildMatch runs first and
// may abort it.
func (f *PluginFinder) BuildMatch() (matcher.Junction, error) {
	if err := f.inst.Enter(PluginFinderBuildMatch, f); err != nil {
		return nil, err
	}

	j := matcher.None()
	if names := slices.Sorted(maps.Keys(f.nameMatch)); len(names) > 0 {
		j = matcher.NamedOneOf(names...)
	}
	for _, d := range f.signatureMatch {
		if m, ok := d.EnhanceClass().(IndirectMatch); ok {
			j = matcher.Or(j, m.BuildJunction())
		}
	}
	return j, nil
}

// Find returns the defines that enhance td.
func (f *PluginFinder) Find(td *instrument.TypeDescription) []ClassEnhancePluginDefine {
	if td == nil {
		return nil
	}
	var found []ClassEnhancePluginDefine
	found = append(found, f.nameMatch[td.Name]...)
	for _, d := range f.signatureMatch {
		if m, ok := d.EnhanceClass().(IndirectMatch); ok && m.IsMatch(td) {
			found = append(found, d)
		}
	}
	return found
}

// Boot is the usual body of a PremainFunc: it builds the finder and hands
// its predicate to install, which makes the agent's transformation global.
func Boot(inst instrument.Instrumentation, defines []ClassEnhancePluginDefine, install func(matcher.Junction) error) error {
	finder := NewPluginFinder(inst, defines)
	j, err := finder.BuildMatch()
	if err != nil {
		return fmt.Errorf("skywalking: build match: %w", err)
	}
	if install == nil {
		return nil
	}
	return install(j)
}
