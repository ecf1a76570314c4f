// Package httpx lets HTTP handlers return errors instead of writing status
// codes by hand. An error can carry the status code and the user-facing
// message; the root cause stays server-side in the logs.
package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// StatusError is an error with an HTTP status code and a message safe to
// show to the caller. Err, when set, is logged but never serialised.
type StatusError struct {
	Code    int
	Message string
	Err     error
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *StatusError) Unwrap() error { return e.Err }

// Error returns a StatusError with the given code and user-facing message.
func Error(code int, message string) error {
	return &StatusError{Code: code, Message: message}
}

// Wrap is Error with the underlying cause attached for logging.
func Wrap(code int, message string, err error) error {
	return &StatusError{Code: code, Message: message, Err: err}
}

// ValidationError is a 400 with per-field detail.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string { return e.Message }

// JSON writes v as a JSON response with the given status code.
func JSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Decode reads the request body as JSON into v. Malformed bodies become a
// 400 with a generic message.
func Decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return Wrap(http.StatusBadRequest, "بيانات غير صحيحة", err)
	}
	return nil
}

// Handler adapts an error-returning handler to http.HandlerFunc, converting
// the error taxonomy into JSON responses and logging root causes.
func Handler(log *zap.Logger, fn func(http.ResponseWriter, *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}

		var ve *ValidationError
		if errors.As(err, &ve) {
			JSON(w, http.StatusBadRequest, map[string]any{
				"message": ve.Message,
				"errors":  ve.Fields,
			})
			return
		}

		code, message := http.StatusInternalServerError, "حدث خطأ في الخادم"
		var se *StatusError
		if errors.As(err, &se) {
			code, message = se.Code, se.Message
		}
		if code >= http.StatusInternalServerError {
			log.Error("request failed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", code),
				zap.Error(err))
		} else {
			log.Debug("request rejected",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", code),
				zap.Error(err))
		}
		JSON(w, code, map[string]any{"message": message})
	}
}
