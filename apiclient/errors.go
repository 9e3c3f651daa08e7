package apiclient

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

var (
	// ErrNoRefreshCredential is joined with the 401 *StatusError when a
	// request fails because no refresh credential is known.
	ErrNoRefreshCredential = errors.New("no refresh credential")
	// ErrCredentialChanged is returned (or wrapped) by a Refresher whose
	// refresh was overtaken by a newer login or logout. The request is retried
	// once with whatever credential is current.
	ErrCredentialChanged = errors.New("credential changed")
)

// StatusError is returned for responses with a status of 400 or above.
type StatusError struct {
	StatusCode int
	Detail     string
	Body       []byte
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("api: http status %d", e.StatusCode)
	}
	return fmt.Sprintf("api: http status %d: %s", e.StatusCode, e.Detail)
}

func newStatusError(resp *resty.Response) *StatusError {
	body := resp.Body()
	return &StatusError{
		StatusCode: resp.StatusCode(),
		Detail:     ErrorDetail(body),
		Body:       body,
	}
}

// ErrorDetail extracts a human-readable message from an error body. It looks
// at "detail" as a string, then the first "detail.N.msg" of a validation error
// list, then "message". It returns "" when none is present.
func ErrorDetail(body []byte) string {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return ""
	}

	detail := gjson.GetBytes(body, "detail")
	switch {
	case detail.Type == gjson.String:
		if s := strings.TrimSpace(detail.String()); s != "" {
			return s
		}
	case detail.IsArray():
		for _, item := range detail.Array() {
			if msg := item.Get("msg"); msg.Type == gjson.String && msg.String() != "" {
				return msg.String()
			}
		}
	}

	if msg := gjson.GetBytes(body, "message"); msg.Type == gjson.String {
		return strings.TrimSpace(msg.String())
	}
	return ""
}
