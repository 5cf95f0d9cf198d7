package swapi

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snowmerak/agentbridge/lib/instrument"
	"github.com/snowmerak/agentbridge/lib/matcher"
)

func defines() []ClassEnhancePluginDefine {
	return []ClassEnhancePluginDefine{
		&PluginDefine{Class: ByName("com.example.Target")},
		&PluginDefine{Class: ByHierarchyMatch("javax.servlet.Servlet")},
		&PluginDefine{Class: ByClassAnnotationMatch("org.springframework.stereotype.Controller")},
		&PluginDefine{Class: "unsupported"},
		nil,
	}
}

func TestPluginFinder_BuildMatchAndFind(t *testing.T) {
	f := NewPluginFinder(instrument.NewAdviceTable(), defines())

	j, err := f.BuildMatch()
	require.NoError(t, err)
	assert.True(t, j.Matches(&instrument.TypeDescription{Name: "com.example.Target"}))
	assert.True(t, j.Matches(&instrument.TypeDescription{Name: "a.MyServlet", Interfaces: []string{"javax.servlet.Servlet"}}))
	assert.True(t, j.Matches(&instrument.TypeDescription{Name: "a.Ctl", Annotations: []string{"org.springframework.stereotype.Controller"}}))
	assert.False(t, j.Matches(&instrument.TypeDescription{Name: "com.example.Other"}))

	assert.Len(t, f.Find(&instrument.TypeDescription{Name: "com.example.Target"}), 1)
	assert.Empty(t, f.Find(&instrument.TypeDescription{Name: "com.example.Other"}))
	assert.Nil(t, f.Find(nil))
}

func TestPluginFinder_BuildMatchIsAJoinPoint(t *testing.T) {
	inst := instrument.NewAdviceTable()
	stop := errors.New("stop")
	var receiver any
	remove := inst.Advise(PluginFinderBuildMatch, func(r any) error {
		receiver = r
		return stop
	})

	f := NewPluginFinder(inst, defines())
	j, err := f.BuildMatch()
	assert.ErrorIs(t, err, stop)
	assert.Nil(t, j)
	assert.Same(t, f, receiver)

	remove()
	err = Boot(inst, defines(), func(j matcher.Junction) error {
		assert.False(t, matcher.IsNone(j))
		return nil
	})
	assert.NoError(t, err)
}

func TestBoot_PropagatesAbort(t *testing.T) {
	inst := instrument.NewAdviceTable()
	stop := errors.New("stop")
	inst.Advise(PluginFinderBuildMatch, func(any) error { return stop })

	installed := false
	err := Boot(inst, defines(), func(matcher.Junction) error {
		installed = true
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.False(t, installed)
}

func TestMethodInterceptResult(t *testing.T) {
	r := NewMethodInterceptResult()
	assert.True(t, r.IsContinue())
	r.DefineReturnValue("cached")
	assert.False(t, r.IsContinue())
	assert.Equal(t, "cached", r.ReturnValue())
}
