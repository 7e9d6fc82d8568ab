package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/deskauth"
	internalmetrics "github.com/MrEthical07/deskauth/internal/metrics"
)

type fakeSource struct {
	snapshot    deskauth.MetricsSnapshot
	dropped     uint64
	sideEffects uint64
}

func (f fakeSource) MetricsSnapshot() deskauth.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                      { return f.dropped }
func (f fakeSource) SideEffectFailures() uint64                { return f.sideEffects }

func newSource() fakeSource {
	return fakeSource{
		snapshot: deskauth.MetricsSnapshot{
			Counters: map[deskauth.MetricID]uint64{
				deskauth.MetricLoginSuccess:         7,
				deskauth.MetricRefreshReuseDetected: 1,
			},
			Latency: []uint64{1, 2, 3, 4, 5, 6, 7, 8},
		},
		dropped:     2,
		sideEffects: 3,
	}
}

func TestCollectorCount(t *testing.T) {
	c := NewCollector(newSource())
	assert.Equal(t, len(internalmetrics.CounterDefs)+3, testutil.CollectAndCount(c))
}

func TestCollectorCounters(t *testing.T) {
	c := NewCollector(newSource())

	expected := `
# HELP deskauth_login_success_total Fully authenticated logins.
# TYPE deskauth_login_success_total counter
deskauth_login_success_total 7
# HELP deskauth_audit_dropped_total Audit events dropped because the dispatcher queue was full.
# TYPE deskauth_audit_dropped_total counter
deskauth_audit_dropped_total 2
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"deskauth_login_success_total", "deskauth_audit_dropped_total")
	require.NoError(t, err)
}

func TestHandlerRendersHistogram(t *testing.T) {
	srv := httptest.NewServer(Handler(newSource()))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := string(body)

	assert.Contains(t, out, `deskauth_authenticate_latency_seconds_bucket{le="0.001"} 1`)
	assert.Contains(t, out, `deskauth_authenticate_latency_seconds_bucket{le="+Inf"} 36`)
	assert.Contains(t, out, "deskauth_authenticate_latency_seconds_count 36")
	assert.Contains(t, out, "deskauth_refresh_reuse_detected_total 1")
	assert.Contains(t, out, "deskauth_side_effect_failures_total 3")
}

func TestNilSourceCollectsNothing(t *testing.T) {
	assert.Equal(t, 0, testutil.CollectAndCount(NewCollector(nil)))
}
