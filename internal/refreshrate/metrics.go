package refreshrate

import "github.com/prometheus/client_golang/prometheus"

type metricSet struct {
	policyUpdates *prometheus.CounterVec
	selections    *prometheus.CounterVec
	cache         *prometheus.CounterVec
	modeSwitches  prometheus.Counter
	currentFPS    prometheus.Gauge
	allowed       prometheus.Gauge
}

func newMetricSet(r prometheus.Registerer, display string) *metricSet {
	var constLabels prometheus.Labels
	if display != "" {
		constLabels = prometheus.Labels{"display": display}
	}
	m := &metricSet{
		policyUpdates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "refresh_policy_updates_total",
				Help:        "Policy update attempts by tier and result.",
				ConstLabels: constLabels,
			},
			[]string{"tier", "result"},
		),
		selections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "refresh_selections_total",
				Help:        "Refresh rate selections by decision path.",
				ConstLabels: constLabels,
			},
			[]string{"path"},
		),
		cache: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "refresh_selection_cache_total",
				Help:        "Selection memo lookups by result.",
				ConstLabels: constLabels,
			},
			[]string{"result"},
		),
		modeSwitches: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name:        "refresh_mode_switches_total",
				Help:        "Confirmed display mode changes.",
				ConstLabels: constLabels,
			},
		),
		currentFPS: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name:        "refresh_current_fps",
				Help:        "Refresh rate of the confirmed display mode.",
				ConstLabels: constLabels,
			},
		),
		allowed: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name:        "refresh_allowed_modes",
				Help:        "Number of modes allowed by the effective policy.",
				ConstLabels: constLabels,
			},
		),
	}
	if r != nil {
		r.MustRegister(m.policyUpdates, m.selections, m.cache, m.modeSwitches, m.currentFPS, m.allowed)
	}
	return m
}
