package apiclient

import (
	"net/http"

	"github.com/go-resty/resty/v2"
)

// Decision is the outcome of classifying one response.
type Decision int

const (
	// DecisionPass hands the response to the caller.
	DecisionPass Decision = iota
	// DecisionRetryAfterRefresh refreshes the credential and re-issues the request.
	DecisionRetryAfterRefresh
	// DecisionFail returns an error to the caller.
	DecisionFail
)

func (d Decision) String() string {
	switch d {
	case DecisionPass:
		return "pass"
	case DecisionRetryAfterRefresh:
		return "retry_after_refresh"
	case DecisionFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Classify decides what to do with a response. retried reports whether the
// request was already re-issued after a refresh.
//
// A transport error fails. A 401 on a first attempt retries. Any other status
// of 400 or above, and a 401 on a retried request, fails.
func Classify(resp *resty.Response, err error, retried bool) Decision {
	if err != nil || resp == nil || resp.RawResponse == nil {
		return DecisionFail
	}

	status := resp.StatusCode()
	switch {
	case status == http.StatusUnauthorized && !retried:
		return DecisionRetryAfterRefresh
	case status >= http.StatusBadRequest:
		return DecisionFail
	default:
		return DecisionPass
	}
}
