package cron

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryKeepsOrderAndRejectsDuplicates(t *testing.T) {
	audit := &testJob{name: "inventory-audit"}
	retention := &testJob{name: "outbox-retention"}
	registry := NewRegistry(audit, nil)
	require.NoError(t, registry.Register(retention))
	require.NoError(t, registry.Register(nil))
	assert.Error(t, registry.Register(&testJob{name: "inventory-audit"}))

	assert.Equal(t, []string{"inventory-audit", "outbox-retention"}, registry.Names())
	jobs := registry.Jobs()
	require.Len(t, jobs, 2)
	assert.Same(t, audit, jobs[0])

	jobs[0] = nil
	assert.NotNil(t, registry.Jobs()[0], "internal slice leaked")
}

func TestRegistryRejectsBlankNamesAndAdaptsFuncs(t *testing.T) {
	registry := NewRegistry()
	assert.ErrorIs(t, registry.Register(JobFunc{JobName: "  "}), errBlankJobName)

	ran := false
	require.NoError(t, registry.Register(JobFunc{JobName: "ping", Fn: func(context.Context) error {
		ran = true
		return nil
	}}))
	require.NoError(t, registry.Jobs()[0].Run(context.Background()))
	assert.True(t, ran)
}
