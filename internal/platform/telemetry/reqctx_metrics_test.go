package telemetry

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/reqctx-service/internal/app/reqctx"
)

var _ reqctx.Observer = (*ReqctxMetrics)(nil)

func TestReqctxMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewReqctxMetrics(reg)
	require.NoError(t, err)

	m.HooksFlushed("GET /orders", 3)
	m.HooksFlushed("GET /orders", 2)
	m.HookFailed("GET /orders")
	m.SubContextEntered()
	m.SubContextEntered()
	m.SubContextExited()

	assert.InDelta(t, 5, testutil.ToFloat64(m.hooksRun.WithLabelValues("GET /orders")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.hookFailures.WithLabelValues("GET /orders")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.subContexts), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.activeSubContexts), 0)

	expected := `
# HELP reqctx_active_sub_contexts Sub-contexts currently running work.
# TYPE reqctx_active_sub_contexts gauge
reqctx_active_sub_contexts 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "reqctx_active_sub_contexts"))
}

func TestNewReqctxMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()

	_, err := NewReqctxMetrics(reg)
	require.NoError(t, err)

	_, err = NewReqctxMetrics(reg)
	assert.Error(t, err)
}
