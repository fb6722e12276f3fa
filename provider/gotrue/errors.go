package gotrue

import (
	"fmt"
)

// APIError captures the auth service's error response.
type APIError struct {
	Operation   string
	Status      int
	Code        string
	Description string
	Err         error
}

func (e *APIError) Error() string {
	if e == nil {
		return "gotrue error"
	}

	scope := "gotrue"
	if e.Operation != "" {
		scope = fmt.Sprintf("gotrue %s", e.Operation)
	}

	switch {
	case e.Description != "":
		return fmt.Sprintf("%s failed (%d): %s", scope, e.Status, e.Description)
	case e.Code != "":
		return fmt.Sprintf("%s failed (%d): %s", scope, e.Status, e.Code)
	case e.Err != nil:
		return fmt.Sprintf("%s failed: %v", scope, e.Err)
	default:
		return fmt.Sprintf("%s failed (%d)", scope, e.Status)
	}
}

func (e *APIError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// errorBody covers the error shapes the service has used over time.
type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	ErrorCode        string `json:"error_code"`
	Code             any    `json:"code"`
}

func (b errorBody) code() string {
	if b.ErrorCode != "" {
		return b.ErrorCode
	}
	if s, ok := b.Code.(string); ok {
		return s
	}
	return b.Error
}

func (b errorBody) description() string {
	for _, s := range []string{b.ErrorDescription, b.Msg, b.Message} {
		if s != "" {
			return s
		}
	}
	return ""
}
