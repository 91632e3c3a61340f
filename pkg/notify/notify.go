// Package notify tells deployment authors how their executions
// ended, by POSTing to the callback URL given with the deployment.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-kit/kit/metrics/prometheus"
	"github.com/pkg/errors"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	"github.com/fluxcd/circles/pkg/circle"
	fluxerr "github.com/fluxcd/circles/pkg/errors"
	fluxmetrics "github.com/fluxcd/circles/pkg/metrics"
)

const DefaultTimeout = 5 * time.Second

var notifyDuration = prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
	Namespace: "circles",
	Subsystem: "notify",
	Name:      "duration_seconds",
	Help:      "Duration of callback notifications, in seconds.",
	Buckets:   stdprometheus.DefBuckets,
}, []string{fluxmetrics.LabelSuccess})

// Payload is the body of a callback.
type Payload struct {
	DeploymentID circle.DeploymentID  `json:"deploymentId"`
	ExecutionID  circle.ExecutionID   `json:"executionId"`
	Type         circle.ExecutionType `json:"type"`
	Status       circle.Status        `json:"status"`
	Error        string               `json:"error,omitempty"`
}

// PayloadFor describes the execution as it stands.
func PayloadFor(e circle.Execution) Payload {
	return Payload{
		DeploymentID: e.DeploymentID,
		ExecutionID:  e.ID,
		Type:         e.Type,
		Status:       e.Status,
		Error:        e.Error,
	}
}

// DeliveryError is returned when a callback could not be delivered,
// or was refused.
func DeliveryError(url string, err error) *fluxerr.Error {
	return &fluxerr.Error{
		Type: fluxerr.Server,
		Err:  errors.Wrapf(err, "notifying %s", url),
		Help: fmt.Sprintf(`The callback at %s could not be notified: %s

The execution's outcome is recorded regardless, and can be seen by
listing executions.
`, url, err),
	}
}

type Notifier struct {
	client *http.Client
}

// New returns a notifier whose requests give up after the timeout,
// or DefaultTimeout if it is zero.
func New(timeout time.Duration) *Notifier {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Notifier{client: &http.Client{Timeout: timeout}}
}

// Notify POSTs the payload as JSON to the URL. It returns the HTTP
// status of the response, or zero if there was none; if that is not
// a 2xx status, the error is a DeliveryError.
func (n *Notifier) Notify(ctx context.Context, url string, p Payload) (status int, err error) {
	defer func(begin time.Time) {
		notifyDuration.With(fluxmetrics.LabelSuccess, fmt.Sprint(err == nil)).Observe(time.Since(begin).Seconds())
	}(time.Now())

	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(p); err != nil {
		return 0, DeliveryError(url, errors.Wrap(err, "encoding callback payload"))
	}
	req, err := http.NewRequest("POST", url, buf)
	if err != nil {
		return 0, DeliveryError(url, errors.Wrap(err, "constructing callback request"))
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return 0, DeliveryError(url, errors.Wrap(err, "executing HTTP POST"))
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
		return resp.StatusCode, DeliveryError(url, fmt.Errorf("%s (%s)", resp.Status, strings.TrimSpace(string(body))))
	}
	return resp.StatusCode, nil
}
