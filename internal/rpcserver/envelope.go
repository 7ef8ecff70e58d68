// Package rpcserver exposes internal/engine.Worker over HTTP as a flat
// JSON request/response envelope: POST /rpc/<method> with a JSON body of
// parameters, returning either {success:true,result} or
// {success:false,error:{...}}.
package rpcserver

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/localretrieve/localretrieve/internal/apperrors"
)

// successEnvelope wraps a successful operation result.
type successEnvelope struct {
	Success bool `json:"success"`
	Result  any  `json:"result"`
}

// errorEnvelope wraps a failed operation's error detail.
type errorEnvelope struct {
	Success bool        `json:"success"`
	Error   *errorField `json:"error"`
}

// errorField is the wire shape of an apperrors.Error.
type errorField struct {
	Kind            apperrors.Kind     `json:"kind"`
	Message         string             `json:"message"`
	UserMessage     string             `json:"userMessage"`
	Severity        apperrors.Severity `json:"severity"`
	Recoverable     bool               `json:"recoverable"`
	SuggestedAction string             `json:"suggestedAction"`
	RequestID       string             `json:"requestId"`
	Timestamp       string             `json:"timestamp"`
}

// Context keys handleRPC stashes so writeSuccess/writeError can record
// Prometheus metrics without every dispatch.go case threading the method
// name and a *Server reference through by hand.
const (
	rpcMetricsServerKey = "rpcMetricsServer"
	rpcMetricsMethodKey = "rpcMetricsMethod"
	rpcMetricsStartKey  = "rpcMetricsStart"
)

// recordOutcome increments the request counters and latency histogram for
// the method handleRPC stashed on c, backing both GET /metrics and the
// getStats operation's RPC totals.
func recordOutcome(c echo.Context, outcome string) {
	method, _ := c.Get(rpcMetricsMethodKey).(string)
	if method == "" {
		return
	}
	rpcRequestsTotal.WithLabelValues(method, outcome).Inc()
	if start, ok := c.Get(rpcMetricsStartKey).(time.Time); ok {
		rpcRequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}
	if s, ok := c.Get(rpcMetricsServerKey).(*Server); ok {
		s.requestsTotal.Add(1)
		if outcome != "success" {
			s.errorsTotal.Add(1)
		}
	}
}

// writeSuccess returns the {success:true,result} envelope.
func writeSuccess(c echo.Context, result any) error {
	recordOutcome(c, "success")
	return c.JSON(http.StatusOK, successEnvelope{Success: true, Result: result})
}

// writeError converts err into the {success:false,error:{...}} envelope.
// A bare non-apperrors error (should not normally reach here) is wrapped as
// an internal database-kind error so the envelope shape never varies.
func writeError(c echo.Context, requestID string, err error) error {
	appErr, ok := err.(*apperrors.Error)
	if !ok {
		appErr = apperrors.New(apperrors.KindDatabase, apperrors.SeverityHigh, "rpcserver", "dispatch", err)
	}
	if appErr.RequestID == "" {
		appErr.WithRequestID(requestID)
	}
	recordOutcome(c, string(appErr.Kind))

	return c.JSON(http.StatusOK, errorEnvelope{
		Success: false,
		Error: &errorField{
			Kind:            appErr.Kind,
			Message:         appErr.Error(),
			UserMessage:     appErr.UserMessage(),
			Severity:        appErr.Severity,
			Recoverable:     appErr.Recoverable,
			SuggestedAction: appErr.SuggestedAction,
			RequestID:       appErr.RequestID,
			Timestamp:       appErr.Timestamp.Format(time.RFC3339),
		},
	})
}

// methodNotFoundError builds the apperrors.Error for an unrecognized method
// name, mirroring how every other dispatch failure is reported.
func methodNotFoundError(method string) *apperrors.Error {
	return apperrors.New(apperrors.KindValidation, apperrors.SeverityLow, "rpcserver", method, apperrors.ErrMethodNotFound).
		WithAction("check the method name against the documented operation list")
}
