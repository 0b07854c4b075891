package metricsTypes

import "time"

type IMetricsClient interface {
	Incr(name string, labels []MetricsLabel, value float64) error
	Gauge(name string, value float64, labels []MetricsLabel) error
	Timing(name string, value time.Duration, labels []MetricsLabel) error
}

type MetricsLabel struct {
	Name  string
	Value string
}

type MetricsType string

var (
	MetricsType_Incr   MetricsType = "incr"
	MetricsType_Gauge  MetricsType = "gauge"
	MetricsType_Timing MetricsType = "timing"
)

type MetricsTypeConfig struct {
	Name   string
	Labels []string
}

var (
	Metric_Incr_LoadRowsProcessed = "load_rows_processed"
	Metric_Incr_LoadRowsSkipped   = "load_rows_skipped"
	Metric_Incr_LoadRowsDropped   = "load_rows_dropped"
	Metric_Incr_LoadRejected      = "load_rejected"
	Metric_Incr_ErpRequest        = "erp_request"

	Metric_Gauge_ErpLastSyncSuccess = "erp_sync_last_success"

	Metric_Timing_LoadDuration       = "load_duration"
	Metric_Timing_ErpRequestDuration = "erp_request_duration"
)

var MetricTypes = map[MetricsType][]MetricsTypeConfig{
	MetricsType_Incr: {
		MetricsTypeConfig{
			Name:   Metric_Incr_LoadRowsProcessed,
			Labels: []string{"kind"},
		},
		MetricsTypeConfig{
			Name:   Metric_Incr_LoadRowsSkipped,
			Labels: []string{"kind"},
		},
		MetricsTypeConfig{
			Name:   Metric_Incr_LoadRowsDropped,
			Labels: []string{"kind"},
		},
		MetricsTypeConfig{
			Name:   Metric_Incr_LoadRejected,
			Labels: []string{"kind"},
		},
		MetricsTypeConfig{
			Name:   Metric_Incr_ErpRequest,
			Labels: []string{"baq", "status"},
		},
	},
	MetricsType_Gauge: {
		MetricsTypeConfig{
			Name:   Metric_Gauge_ErpLastSyncSuccess,
			Labels: []string{},
		},
	},
	MetricsType_Timing: {
		MetricsTypeConfig{
			Name:   Metric_Timing_LoadDuration,
			Labels: []string{"kind"},
		},
		MetricsTypeConfig{
			Name:   Metric_Timing_ErpRequestDuration,
			Labels: []string{"baq"},
		},
	},
}
