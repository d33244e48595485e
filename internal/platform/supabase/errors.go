package supabase

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// APIError is a non-2xx answer from the backend. Message is the upstream
// text, suitable for showing to the user as-is.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// errorBody covers both GoTrue ({code:int, error_code, msg} or the older
// {error, error_description}) and PostgREST ({code:string, message, hint}).
type errorBody struct {
	Code             json.RawMessage `json:"code"`
	ErrorCode        string          `json:"error_code"`
	Msg              string          `json:"msg"`
	Message          string          `json:"message"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

func parseAPIError(status int, data []byte) *APIError {
	apiErr := &APIError{Status: status}

	var body errorBody
	if err := json.Unmarshal(data, &body); err != nil {
		apiErr.Message = strings.TrimSpace(string(data))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(status)
		}
		return apiErr
	}

	for _, msg := range []string{body.Msg, body.Message, body.ErrorDescription, body.Error} {
		if msg != "" {
			apiErr.Message = msg
			break
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}

	switch {
	case body.ErrorCode != "":
		apiErr.Code = body.ErrorCode
	case len(body.Code) > 0 && body.Code[0] == '"':
		json.Unmarshal(body.Code, &apiErr.Code)
	case body.Error != "" && body.ErrorDescription != "":
		apiErr.Code = body.Error
	}

	return apiErr
}

// IsUnauthorized reports whether err is an upstream 401/403, which for the
// auth endpoints means the presented token is no longer usable.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden
	}
	return false
}

// Message returns the text to surface for err, or fallback when err did not
// come from the backend.
func Message(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
