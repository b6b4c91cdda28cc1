package telemetry

import (
	"strconv"
	"time"

	"github.com/birbparty/firenest/sdk"
	"github.com/sirupsen/logrus"
)

var _ sdk.Observer = (*Observer)(nil)

// Observer exports document client events as Prometheus metrics and logs
// failed attempts, retries and token refreshes. Install it with
// sdk.Config.WithObserver.
type Observer struct {
	logger *logrus.Entry
}

// NewObserver creates an observer logging through logger. A nil logger uses
// the global one.
func NewObserver(logger *logrus.Logger) *Observer {
	if logger == nil {
		logger = L()
	}
	return &Observer{logger: logger.WithField("component", "firenest-client")}
}

// OnRequestStart tracks the attempt as in flight
func (o *Observer) OnRequestStart(method, path string) {
	clientRequestsInFlight.Inc()
}

// OnRequestEnd records the attempt. Paths are logged, not used as labels.
func (o *Observer) OnRequestEnd(method, path string, status int, duration time.Duration, err error) {
	clientRequestsInFlight.Dec()
	clientRequestsTotal.WithLabelValues(method, statusLabel(status)).Inc()
	clientRequestDuration.WithLabelValues(method).Observe(duration.Seconds())

	if err != nil {
		o.logger.WithFields(logrus.Fields{
			"method":   method,
			"path":     path,
			"status":   status,
			"duration": duration.Milliseconds(),
			"kind":     sdk.KindOf(err).String(),
		}).WithError(err).Debug("Request failed")
	}
}

// OnRetryAttempt counts the retry
func (o *Observer) OnRetryAttempt(op string, attempt int, delay time.Duration, err error) {
	clientRetriesTotal.WithLabelValues(op).Inc()

	o.logger.WithFields(logrus.Fields{
		"operation": op,
		"attempt":   attempt,
		"delay":     delay.String(),
	}).WithError(err).Warn("Retrying operation")
}

// OnTokenRefresh records the refresh and its outcome
func (o *Observer) OnTokenRefresh(kind string, duration time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	tokenRefreshesTotal.WithLabelValues(kind, result).Inc()
	tokenRefreshDuration.WithLabelValues(kind).Observe(duration.Seconds())

	entry := o.logger.WithFields(logrus.Fields{
		"kind":     kind,
		"duration": duration.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Error("Token refresh failed")
		return
	}
	entry.Debug("Token refreshed")
}

// statusLabel renders 0, meaning no response, as "none"
func statusLabel(status int) string {
	if status == 0 {
		return "none"
	}
	return strconv.Itoa(status)
}
