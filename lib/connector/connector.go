package connector

import (
	"encoding/json"
	"fmt"

	"github.com/go-resty/resty/v2"
)

type Error struct {
	Code    int
	Message string
	Path    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("connector error, request path: %s, code: %d, message: %s", e.Path, e.Code, e.Message)
}

// Receive executes the request and unwraps the standard JSON envelope used by all services.
func Receive[T any](r *resty.Request, path string, method string) (*T, error) {
	var result struct {
		OK    bool   `json:"ok"`
		Error string `json:"error,omitempty"`
		Data  *T     `json:"data,omitempty"`
	}
	r.SetResult(&result)
	r.SetError(&result)
	resp, err := r.Execute(method, path)
	if err != nil {
		return nil, err
	}
	if resp.IsError() || !result.OK {
		if result.Error == "" {
			// the body did not carry the envelope, e.g. a proxy error page
			return nil, ParseRespError(resp.Body(), resp)
		}
		return nil, &Error{
			Code:    resp.StatusCode(),
			Message: result.Error,
			Path:    path,
		}
	}
	return result.Data, nil
}

func ReceiveEmpty(r *resty.Request, path string, method string) error {
	_, err := Receive[string](r, path, method)
	return err
}

// ParseRespError builds an Error from a raw non-envelope response body.
func ParseRespError(body []byte, resp *resty.Response) error {
	var envelope struct {
		Error string `json:"error,omitempty"`
	}
	message := string(body)
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != "" {
		message = envelope.Error
	}
	return &Error{
		Code:    resp.StatusCode(),
		Message: message,
		Path:    resp.Request.URL,
	}
}
