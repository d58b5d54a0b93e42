package monitor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateStatusAlertsOnLeavingHealthy(t *testing.T) {
	var alerts []string
	m := NewMonitor(func(component, status, message string) {
		alerts = append(alerts, component+":"+status)
	})

	m.UpdateStatus("worker", StatusHealthy, "")
	m.UpdateStatus("worker", StatusDegraded, "backlog")
	m.UpdateStatus("worker", StatusDegraded, "still backlog")
	m.UpdateStatus("worker", StatusHealthy, "")

	assert.Equal(t, []string{"worker:degraded"}, alerts)
	got := m.GetStatus("worker")
	require.NotNil(t, got)
	assert.Equal(t, StatusHealthy, got.Status)
	assert.Nil(t, m.GetStatus("nope"))
}

func TestHealthyNeedsEveryComponent(t *testing.T) {
	m := NewMonitor(nil)
	assert.True(t, m.Healthy())

	m.RegisterComponent("database")
	assert.False(t, m.Healthy(), "unknown is not healthy")

	m.UpdateStatus("database", StatusHealthy, "")
	assert.True(t, m.Healthy())
}

func TestCheckAllRunsProbes(t *testing.T) {
	m := NewMonitor(nil)
	m.AddProbe("database", func(context.Context) error { return nil })
	m.AddProbe("nats", func(context.Context) error { return errors.New("not connected") })

	m.CheckAll(context.Background())

	all := m.GetAllStatus()
	require.Len(t, all, 2)
	assert.Equal(t, "database", all[0].Component)
	assert.Equal(t, StatusHealthy, all[0].Status)
	assert.Equal(t, StatusUnhealthy, all[1].Status)
	assert.Equal(t, "not connected", all[1].Message)
	assert.False(t, m.Healthy())
}
