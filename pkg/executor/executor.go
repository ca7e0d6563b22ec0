package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"time"

	"github.com/docker/go-units"
	"github.com/ethpandaops/smokeoor/pkg/canonjson"
	"github.com/ethpandaops/smokeoor/pkg/check"
	"github.com/ethpandaops/smokeoor/pkg/testcase"
	"github.com/sirupsen/logrus"
)

// Executor runs a single test case against a single backend.
type Executor interface {
	// Execute performs the request and evaluates the checks. Every failure
	// is reported through the returned Result; Execute never fails itself.
	Execute(ctx context.Context, backend string, tc *testcase.TestCase) *Result
}

// Config for the executor.
type Config struct {
	// Client is the HTTP client used for requests. Defaults to a client
	// without a timeout.
	Client *http.Client
	// RequestTimeout bounds each request when positive. Zero means no
	// timeout beyond the transport's own.
	RequestTimeout time.Duration
	// UserAgent is sent with every request when set.
	UserAgent string
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// NewExecutor creates a new executor instance.
func NewExecutor(log logrus.FieldLogger, cfg *Config) Executor {
	e := &executor{
		log:    log.WithField("component", "executor"),
		client: cfg.Client,
		cfg:    cfg,
		now:    cfg.Now,
	}

	if e.client == nil {
		e.client = &http.Client{}
	}

	if e.now == nil {
		e.now = time.Now
	}

	return e
}

type executor struct {
	log    logrus.FieldLogger
	client *http.Client
	cfg    *Config
	now    func() time.Time
}

// Ensure interface compliance.
var _ Executor = (*executor)(nil)

// Execute runs one request against backend + tc.Endpoint.
func (e *executor) Execute(ctx context.Context, backend string, tc *testcase.TestCase) *Result {
	result := &Result{
		URL: backend + tc.Endpoint,
	}

	log := e.log.WithFields(logrus.Fields{
		"test":    tc.Path,
		"backend": backend,
	})

	payload, err := canonjson.Reformat(tc.Data)
	if err != nil {
		// Data came from a parsed file, so this only happens for hand-built
		// test cases. Fall back to the raw bytes to keep the repro useful.
		payload = tc.Data
		result.Err = fmt.Errorf("formatting request data: %w", err)
	}

	result.Payload = payload

	checker := check.FromTestCase(tc)

	start := e.now()
	result.StartedAt = start

	if result.Err == nil {
		result.StatusCode, result.Body, result.Err = e.post(ctx, result.URL, payload, log)
	}

	if result.Err == nil {
		result.Err = checker.Check(result.Body)
	}

	finished := e.now()

	result.Duration = finished.Sub(start)
	if result.Duration < 0 {
		result.Duration = 0
	}

	outcome := OutcomeSuccess
	if result.Err != nil {
		outcome = OutcomeFailure
	}

	result.Record = Record{
		Timestamp: finished.UTC().Format(TimestampLayout),
		Test:      tc.Path,
		Result:    outcome,
		Runtime:   canonjson.Float(result.Duration.Seconds()),
		Backend:   backend,
	}

	if result.Err != nil {
		log.WithError(result.Err).WithField("url", result.URL).Debug("Test failed")
	}

	return result
}

// post sends the payload and returns the status code and body. A non-2xx
// status is returned as an error together with whatever body was received.
func (e *executor) post(
	ctx context.Context,
	url string,
	payload []byte,
	log logrus.FieldLogger,
) (int, []byte, error) {
	// In-flight requests are allowed to finish when the run is interrupted.
	ctx = context.WithoutCancel(ctx)

	if e.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, e.cfg.RequestTimeout)
		defer cancel()
	}

	var wroteRequest, gotFirstByte time.Time

	trace := &httptrace.ClientTrace{
		WroteRequest: func(_ httptrace.WroteRequestInfo) {
			wroteRequest = time.Now()
		},
		GotFirstResponseByte: func() {
			gotFirstByte = time.Now()
		},
	}

	req, err := http.NewRequestWithContext(
		httptrace.WithClientTrace(ctx, trace),
		http.MethodPost,
		url,
		bytes.NewReader(payload),
	)
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", ContentType)

	if e.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", e.cfg.UserAgent)
	}

	start := time.Now()

	resp, err := e.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("executing request: %w", err)
	}

	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, body, fmt.Errorf("reading response: %w", err)
	}

	var ttfb time.Duration
	if !wroteRequest.IsZero() && !gotFirstByte.IsZero() {
		ttfb = gotFirstByte.Sub(wroteRequest)
	}

	log.WithFields(logrus.Fields{
		"status":     resp.StatusCode,
		"body_size":  units.HumanSize(float64(len(body))),
		"ttfb":       ttfb,
		"round_trip": time.Since(start),
	}).Debug("Request completed")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, body, fmt.Errorf("unexpected status %s", resp.Status)
	}

	return resp.StatusCode, body, nil
}
