// Package erp talks to the ERP connector service, which runs saved business
// activity queries (BAQs) and returns their rows as JSON records.
package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/zsmith-jtec/AFKPI/internal/config"
	"github.com/zsmith-jtec/AFKPI/internal/metrics"
	"github.com/zsmith-jtec/AFKPI/internal/metrics/metricsTypes"
	"go.uber.org/zap"
)

var backoffSchedule = []time.Duration{
	1 * time.Second,
	3 * time.Second,
	10 * time.Second,
	30 * time.Second,
}

const defaultPageSize = 10000

// UpstreamSourceError reports that one ERP source could not be read.
type UpstreamSourceError struct {
	Source string
	Err    error
}

func (e *UpstreamSourceError) Error() string {
	return fmt.Sprintf("erp source '%s' failed: %v", e.Source, e.Err)
}

func (e *UpstreamSourceError) Unwrap() error {
	return e.Err
}

type QueryRequest struct {
	BaqName    string                 `json:"baq_name"`
	UserId     string                 `json:"user_id"`
	Parameters map[string]interface{} `json:"parameters"`
}

type QueryResponse struct {
	Error   bool                     `json:"error"`
	Message string                   `json:"message"`
	Records []map[string]interface{} `json:"records"`
}

// Query names a BAQ with an optional OData filter. Top falls back to the
// configured page size.
type Query struct {
	Baq    string
	Filter string
	Top    int
}

type ErpClient struct {
	httpClient      *http.Client
	metricsSink     *metrics.MetricsSink
	backoffSchedule []time.Duration
	Logger          *zap.Logger
	Config          *config.Config
}

func NewErpClient(hc *http.Client, ms *metrics.MetricsSink, l *zap.Logger, cfg *config.Config) *ErpClient {
	if hc == nil {
		hc = &http.Client{Timeout: cfg.ErpConfig.RequestTimeout}
	}
	if ms == nil {
		ms = metrics.NewNoopMetricsSink()
	}
	return &ErpClient{
		httpClient:      hc,
		metricsSink:     ms,
		backoffSchedule: backoffSchedule,
		Logger:          l,
		Config:          cfg,
	}
}

func (ec *ErpClient) queryUrl() string {
	return strings.TrimRight(ec.Config.ErpConfig.ConnectorUrl, "/") + "/query"
}

func (ec *ErpClient) buildRequest(q Query) *QueryRequest {
	top := q.Top
	if top <= 0 {
		top = ec.Config.ErpConfig.PageSize
	}
	if top <= 0 {
		top = defaultPageSize
	}
	params := map[string]interface{}{
		"$top": top,
	}
	if q.Filter != "" {
		params["$filter"] = q.Filter
	}
	return &QueryRequest{
		BaqName:    q.Baq,
		UserId:     ec.Config.ErpConfig.UserId,
		Parameters: params,
	}
}

// retryable marks failures worth another attempt: transport errors and 5xx.
type retryable struct {
	err error
}

func (r *retryable) Error() string {
	return r.err.Error()
}

func (ec *ErpClient) makeRequest(ctx context.Context, q Query) (*QueryResponse, error) {
	body, err := json.Marshal(ec.buildRequest(q))
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ec.queryUrl(), bytes.NewReader(body))
	if err != nil {
		ec.Logger.Sugar().Errorw("Failed to create the ERP HTTP request", zap.Error(err))
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	if ec.Config.ErpConfig.ApiKey != "" {
		req.Header.Set("x-api-key", ec.Config.ErpConfig.ApiKey)
	}

	start := time.Now()
	res, err := ec.httpClient.Do(req)
	ec.metricsSink.TimingQuiet(metricsTypes.Metric_Timing_ErpRequestDuration, time.Since(start), []metricsTypes.MetricsLabel{
		{Name: "baq", Value: q.Baq},
	})
	if err != nil {
		ec.countRequest(q.Baq, "transport_error")
		return nil, &retryable{err: err}
	}
	defer res.Body.Close()
	ec.countRequest(q.Baq, strconv.Itoa(res.StatusCode))

	bodyBytes, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &retryable{err: err}
	}

	if res.StatusCode >= http.StatusInternalServerError {
		return nil, &retryable{err: fmt.Errorf("response status %s", res.Status)}
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("response status %s, response body: %s", res.Status, string(bodyBytes))
	}

	// numbers stay json.Number so amounts reach decimal without a float64 pass
	parsed := &QueryResponse{}
	dec := json.NewDecoder(bytes.NewReader(bodyBytes))
	dec.UseNumber()
	if err := dec.Decode(parsed); err != nil {
		return nil, errors.Wrap(err, "failed to parse ERP response")
	}
	if parsed.Error {
		return nil, fmt.Errorf("connector error: %s", parsed.Message)
	}
	return parsed, nil
}

func (ec *ErpClient) countRequest(baq string, status string) {
	ec.metricsSink.IncrQuiet(metricsTypes.Metric_Incr_ErpRequest, []metricsTypes.MetricsLabel{
		{Name: "baq", Value: baq},
		{Name: "status", Value: status},
	}, 1)
}

// Query runs one BAQ and returns its records. Transport failures and server
// errors are retried on the backoff schedule; any final failure is returned
// as *UpstreamSourceError.
func (ec *ErpClient) Query(ctx context.Context, q Query) ([]map[string]interface{}, error) {
	var lastErr error
	attempts := len(ec.backoffSchedule) + 1

	for attempt := 0; attempt < attempts; attempt++ {
		res, err := ec.makeRequest(ctx, q)
		if err == nil {
			ec.Logger.Sugar().Debugw("Fetched BAQ records",
				zap.String("baq", q.Baq),
				zap.Int("records", len(res.Records)),
			)
			return res.Records, nil
		}
		lastErr = err

		var r *retryable
		if !errors.As(err, &r) || attempt == attempts-1 {
			break
		}

		backoff := ec.backoffSchedule[attempt]
		ec.Logger.Sugar().Warnw("ERP request failed, backing off",
			zap.String("baq", q.Baq),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil, &UpstreamSourceError{Source: q.Baq, Err: ctx.Err()}
		case <-time.After(backoff):
		}
	}
	return nil, &UpstreamSourceError{Source: q.Baq, Err: lastErr}
}
