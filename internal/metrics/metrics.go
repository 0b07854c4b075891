package metrics

import (
	"sort"
	"time"

	"github.com/zsmith-jtec/AFKPI/internal/config"
	"github.com/zsmith-jtec/AFKPI/internal/metrics/dogstatsd"
	"github.com/zsmith-jtec/AFKPI/internal/metrics/metricsTypes"
	"github.com/zsmith-jtec/AFKPI/internal/metrics/prometheus"
	"go.uber.org/zap"
)

type MetricsSink struct {
	clients []metricsTypes.IMetricsClient
	config  *MetricsSinkConfig
	logger  *zap.Logger
}

type MetricsSinkConfig struct {
	DefaultLabels []metricsTypes.MetricsLabel
}

func NewMetricsSink(cfg *MetricsSinkConfig, clients []metricsTypes.IMetricsClient, l *zap.Logger) (*MetricsSink, error) {
	if cfg.DefaultLabels == nil {
		cfg.DefaultLabels = []metricsTypes.MetricsLabel{}
	}
	if l == nil {
		l = zap.NewNop()
	}
	return &MetricsSink{
		clients: clients,
		config:  cfg,
		logger:  l,
	}, nil
}

// NewNoopMetricsSink returns a sink with no clients attached.
func NewNoopMetricsSink() *MetricsSink {
	sink, _ := NewMetricsSink(&MetricsSinkConfig{}, nil, nil)
	return sink
}

func mergeLabels(labels []metricsTypes.MetricsLabel, defaultLabels []metricsTypes.MetricsLabel) []metricsTypes.MetricsLabel {
	if labels == nil {
		return defaultLabels
	}
	mergedLabels := make([]metricsTypes.MetricsLabel, 0, len(labels)+len(defaultLabels))
	mergedLabels = append(mergedLabels, defaultLabels...)
	mergedLabels = append(mergedLabels, labels...)
	return mergedLabels
}

func (ms *MetricsSink) Incr(name string, labels []metricsTypes.MetricsLabel, value float64) error {
	mergedLabels := mergeLabels(labels, ms.config.DefaultLabels)
	for _, client := range ms.clients {
		if err := client.Incr(name, mergedLabels, value); err != nil {
			return err
		}
	}
	return nil
}

func (ms *MetricsSink) Gauge(name string, value float64, labels []metricsTypes.MetricsLabel) error {
	mergedLabels := mergeLabels(labels, ms.config.DefaultLabels)
	for _, client := range ms.clients {
		if err := client.Gauge(name, value, mergedLabels); err != nil {
			return err
		}
	}
	return nil
}

func (ms *MetricsSink) Timing(name string, value time.Duration, labels []metricsTypes.MetricsLabel) error {
	mergedLabels := mergeLabels(labels, ms.config.DefaultLabels)
	for _, client := range ms.clients {
		if err := client.Timing(name, value, mergedLabels); err != nil {
			return err
		}
	}
	return nil
}

// IncrQuiet logs emit failures instead of returning them.
func (ms *MetricsSink) IncrQuiet(name string, labels []metricsTypes.MetricsLabel, value float64) {
	if err := ms.Incr(name, labels, value); err != nil {
		ms.logger.Sugar().Warnw("Failed to emit metric", zap.String("name", name), zap.Error(err))
	}
}

func (ms *MetricsSink) TimingQuiet(name string, value time.Duration, labels []metricsTypes.MetricsLabel) {
	if err := ms.Timing(name, value, labels); err != nil {
		ms.logger.Sugar().Warnw("Failed to emit metric", zap.String("name", name), zap.Error(err))
	}
}

func (ms *MetricsSink) GaugeQuiet(name string, value float64, labels []metricsTypes.MetricsLabel) {
	if err := ms.Gauge(name, value, labels); err != nil {
		ms.logger.Sugar().Warnw("Failed to emit metric", zap.String("name", name), zap.Error(err))
	}
}

func DefaultLabelsFromConfig(cfg *config.Config) []metricsTypes.MetricsLabel {
	raw := cfg.GetMetricsDefaultLabels()
	names := make([]string, 0, len(raw))
	for k := range raw {
		names = append(names, k)
	}
	sort.Strings(names)

	labels := make([]metricsTypes.MetricsLabel, 0, len(names))
	for _, n := range names {
		labels = append(labels, metricsTypes.MetricsLabel{Name: n, Value: raw[n]})
	}
	return labels
}

func InitMetricsSinksFromConfig(cfg *config.Config, l *zap.Logger) ([]metricsTypes.IMetricsClient, error) {
	clients := []metricsTypes.IMetricsClient{}

	if cfg.DataDogConfig.StatsdConfig.Enabled {
		dd, err := dogstatsd.NewDogStatsdMetricsClient(cfg.DataDogConfig.StatsdConfig.Url, cfg.DataDogConfig.StatsdConfig.SampleRate, l)
		if err != nil {
			return nil, err
		}
		clients = append(clients, dd)
	}

	if cfg.PrometheusConfig.Enabled {
		pm, err := prometheus.NewPrometheusMetricsClient(&prometheus.PrometheusMetricsConfig{
			Metrics: metricsTypes.MetricTypes,
		}, l)
		if err != nil {
			return nil, err
		}
		clients = append(clients, pm)
	}

	return clients, nil
}
