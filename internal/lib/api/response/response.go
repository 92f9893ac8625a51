package response

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Response is the uniform envelope every endpoint returns. Failures carry
// only the status code and a message; no internal error detail leaks to the
// client.
type Response struct {
	StatusCode int         `json:"statusCode"`
	Success    bool        `json:"success"`
	Message    string      `json:"message,omitempty"`
	Data       interface{} `json:"data,omitempty"`
}

func OK(data interface{}, msg string) Response {
	return Response{
		StatusCode: http.StatusOK,
		Success:    true,
		Message:    msg,
		Data:       data,
	}
}

func Created(data interface{}, msg string) Response {
	return Response{
		StatusCode: http.StatusCreated,
		Success:    true,
		Message:    msg,
		Data:       data,
	}
}

func Error(code int, msg string) Response {
	return Response{
		StatusCode: code,
		Success:    false,
		Message:    msg,
	}
}

func ValidationError(errs validator.ValidationErrors) Response {
	var errMsgs []string

	for _, err := range errs {
		switch err.ActualTag() {
		case "required":
			errMsgs = append(errMsgs, fmt.Sprintf("field %s is required", err.Field()))
		case "email":
			errMsgs = append(errMsgs, fmt.Sprintf("field %s is not a valid email", err.Field()))
		case "min":
			errMsgs = append(errMsgs, fmt.Sprintf("field %s is too short", err.Field()))
		default:
			errMsgs = append(errMsgs, fmt.Sprintf("field %s is not valid", err.Field()))
		}
	}

	return Error(http.StatusBadRequest, strings.Join(errMsgs, ", "))
}
