package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/switchboardhq/switchboard/internal/errs"
)

// Error codes carried in PublishError.Code.
const (
	CodeValidationFailed = "validation_failed"
	CodeNetwork          = "network_error"
	CodeTimeout          = "timeout"
	CodeCanceled         = "canceled"
	CodeRateLimited      = "rate_limited"
	CodeUpstream         = "upstream_error"
	CodeUnauthorized     = "unauthorized"
	CodeForbidden        = "forbidden"
	CodeNotFound         = "not_found"
	CodeRejected         = "rejected"
	CodeInvalidResponse  = "invalid_response"
	CodeMissingConfig    = "missing_configuration"
)

const (
	maxResponseBytes = 1 << 20
	maxRawResponse   = 2048
)

// HTTPClient is satisfied by *http.Client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

// Decode unmarshals the body into out.
func (r *Response) Decode(out any) *PublishError {
	if err := json.Unmarshal(r.Body, out); err != nil {
		return &PublishError{
			Code:        CodeInvalidResponse,
			Message:     fmt.Sprintf("decode response: %v", err),
			StatusCode:  r.StatusCode,
			RawResponse: truncate(r.Body),
		}
	}
	return nil
}

// Do sends req and reads the whole response. Only transport failures are
// returned as errors; callers inspect the status themselves.
func Do(client HTTPClient, req *http.Request) (*Response, *PublishError) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, TransportFailure(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, TransportFailure(err)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// DoJSON sends req and decodes a 2xx body into out. Any other status is
// classified with StatusFailure.
func DoJSON(client HTTPClient, req *http.Request, out any) *PublishError {
	resp, perr := Do(client, req)
	if perr != nil {
		return perr
	}
	if !resp.OK() {
		return StatusFailure(resp.StatusCode, resp.Body)
	}
	if out == nil {
		return nil
	}
	return resp.Decode(out)
}

// TransportFailure classifies an error from the HTTP round trip. All
// transport failures are retryable.
func TransportFailure(err error) *PublishError {
	code := CodeNetwork
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		code = CodeTimeout
	case errors.Is(err, context.Canceled):
		code = CodeCanceled
	case errors.As(err, &netErr) && netErr.Timeout():
		code = CodeTimeout
	}
	return &PublishError{Code: code, Message: err.Error(), Retryable: true}
}

// StatusFailure classifies a non-2xx response. 429 and 5xx are retryable;
// every other 4xx is not.
func StatusFailure(status int, body []byte) *PublishError {
	pe := &PublishError{
		Code:        codeForStatus(status),
		Message:     extractMessage(body),
		StatusCode:  status,
		RawResponse: truncate(body),
	}
	if pe.Message == "" {
		pe.Message = http.StatusText(status)
	}
	pe.Retryable = status == http.StatusTooManyRequests || status >= 500
	return pe
}

func codeForStatus(status int) string {
	switch {
	case status == http.StatusTooManyRequests:
		return CodeRateLimited
	case status >= 500:
		return CodeUpstream
	case status == http.StatusUnauthorized:
		return CodeUnauthorized
	case status == http.StatusForbidden:
		return CodeForbidden
	case status == http.StatusNotFound:
		return CodeNotFound
	default:
		return CodeRejected
	}
}

// extractMessage finds a human readable message in the common provider error
// shapes: {"error":{"message":..}}, {"error_description":..}, {"message":..}
// and {"error":".."}.
func extractMessage(body []byte) string {
	var env struct {
		Error            json.RawMessage `json:"error"`
		ErrorDescription string          `json:"error_description"`
		Message          string          `json:"message"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return strings.TrimSpace(string(truncateBytes(body, 200)))
	}
	if len(env.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(env.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
	}
	if env.ErrorDescription != "" {
		return env.ErrorDescription
	}
	if env.Message != "" {
		return env.Message
	}
	var s string
	if len(env.Error) > 0 && json.Unmarshal(env.Error, &s) == nil {
		return s
	}
	return ""
}

// TokenStatus converts the outcome of a token liveness probe. Rejections
// (401/403/400 class) mean the token is invalid; transport and server
// failures are returned as errors.
func TokenStatus(perr *PublishError) (bool, error) {
	if perr == nil {
		return true, nil
	}
	if perr.Retryable || perr.Code == CodeInvalidResponse {
		return false, fmt.Errorf("%w: %s", errs.ErrTransport, perr.Error())
	}
	return false, nil
}

// RefreshFailure converts a failed refresh call into an error.
func RefreshFailure(id ID, perr *PublishError) error {
	if perr.Retryable {
		return fmt.Errorf("%w: refresh %s token: %s", errs.ErrTransport, id, perr.Error())
	}
	return fmt.Errorf("%w: refresh %s token: %s", errs.ErrAuthentication, id, perr.Error())
}

func truncate(b []byte) string {
	return string(truncateBytes(b, maxRawResponse))
}

func truncateBytes(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
