package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

// apiError is returned by handlers and rendered by errorHandler.
type apiError struct {
	status int
	kind   string
	msg    string
}

func (e *apiError) Error() string {
	return e.msg
}

func badRequest(format string, args ...any) *apiError {
	return &apiError{status: http.StatusBadRequest, kind: "invalid_request_error", msg: fmt.Sprintf(format, args...)}
}

func notFound(msg string) *apiError {
	return &apiError{status: http.StatusNotFound, kind: "not_found_error", msg: msg}
}

func unavailable(msg string) *apiError {
	return &apiError{status: http.StatusServiceUnavailable, kind: "server_error", msg: msg}
}

func internalError(msg string) *apiError {
	return &apiError{status: http.StatusInternalServerError, kind: "server_error", msg: msg}
}

type errorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type errorResponse struct {
	Error errorDetail `json:"error"`
}

func errorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var (
			apiErr  *apiError
			httpErr *echo.HTTPError
			out     = internalError("internal server error")
		)
		switch {
		case errors.As(err, &apiErr):
			out = apiErr
		case errors.As(err, &httpErr):
			kind := "invalid_request_error"
			if httpErr.Code >= http.StatusInternalServerError {
				kind = "server_error"
			}
			out = &apiError{status: httpErr.Code, kind: kind, msg: fmt.Sprint(httpErr.Message)}
		default:
			logger.Error("unhandled error", "uri", c.Request().RequestURI, "err", err)
		}

		if err := c.JSON(out.status, errorResponse{Error: errorDetail{Message: out.msg, Type: out.kind}}); err != nil {
			logger.Warn("write error response", "err", err)
		}
	}
}

// decodeJSON reads exactly one JSON value from the request body into target.
// Validation errors raised by target's UnmarshalJSON are reported verbatim.
func decodeJSON(c echo.Context, target any) error {
	body := c.Request().Body
	defer body.Close()

	dec := json.NewDecoder(body)
	err := dec.Decode(target)

	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
		httpErr   *echo.HTTPError
	)
	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		return badRequest("request body is required")
	case errors.As(err, &httpErr):
		// BodyLimit aborts the read with 413.
		return httpErr
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr), errors.Is(err, io.ErrUnexpectedEOF):
		return badRequest("invalid JSON payload: %v", err)
	default:
		return badRequest("%s", err.Error())
	}

	if dec.More() {
		return badRequest("request body must contain a single JSON object")
	}
	return nil
}
