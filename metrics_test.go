package firefx

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gekko3d/firefx/fxrt/rt/core"
	"github.com/gekko3d/firefx/fxrt/rt/particle"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsObserveComposite(t *testing.T) {
	m := NewMetrics("test")
	m.ObserveTick(particle.TickStats{
		System:     "FireSmoke",
		State:      particle.StateSteady,
		Population: core.Population{Primary: 120, Smoke: 40},
		Written:    161,
		Dropped:    3,
		Composite:  true,
	})
	m.ObserveTick(particle.TickStats{
		System:    "FireSmoke",
		State:     particle.StateSteady,
		Written:   170,
		Dropped:   2,
		Composite: true,
		TimedOut:  true,
	})

	assert.Equal(t, 120.0, testutil.ToFloat64(m.population.WithLabelValues("FireSmoke", "primary")))
	assert.Equal(t, 40.0, testutil.ToFloat64(m.population.WithLabelValues("FireSmoke", "smoke")))
	assert.Equal(t, 161.0, testutil.ToFloat64(m.written.WithLabelValues("FireSmoke")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.dropped.WithLabelValues("FireSmoke")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.timeouts.WithLabelValues("FireSmoke")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ticks.WithLabelValues("FireSmoke", "steady")))
}

func TestMetricsSinglePopulationOnlyTicks(t *testing.T) {
	m := NewMetrics("")
	m.ObserveTick(particle.TickStats{System: "Flare", State: particle.StateBootstrap})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ticks.WithLabelValues("Flare", "bootstrap")))
	assert.Equal(t, 0, testutil.CollectAndCount(m.population))
}

func TestMetricsForget(t *testing.T) {
	m := NewMetrics("test")
	m.ObserveTick(particle.TickStats{System: "a", Composite: true, Written: 1})
	m.ObserveTick(particle.TickStats{System: "b", Composite: true, Written: 2})
	m.Forget("a")

	assert.Equal(t, 1, testutil.CollectAndCount(m.written))
	assert.Equal(t, 2, testutil.CollectAndCount(m.population))
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics("test")
	m.ObserveTick(particle.TickStats{System: "Boom", State: particle.StateSteady})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `test_ticks_total{state="steady",system="Boom"} 1`))
}
