package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/fulmenhq/gofulmen/errors"
	"go.uber.org/zap"

	apperrors "github.com/3leaps/jobscope/internal/errors"
)

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody carries the client-safe part of an error.
type ErrorBody struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Recovery turns a panic into a 500 envelope. The panic value is logged, never
// returned to the client.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			LoggerFrom(r.Context()).Error("panic recovered",
				zap.String("panic", fmt.Sprintf("%v", rec)),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("request_id", GetRequestID(r.Context())),
				zap.ByteString("stack", debug.Stack()),
			)

			env := errors.NewErrorEnvelope(string(apperrors.KindInternal), "internal server error")
			if id := GetRequestID(r.Context()); id != "" {
				env = env.WithCorrelationID(id)
			}
			writeErrorResponse(w, env, http.StatusInternalServerError)
		}()
		next.ServeHTTP(w, r)
	})
}

// ErrorHandler is Recovery under the name used by the router setup.
func ErrorHandler(next http.Handler) http.Handler {
	return Recovery(next)
}

// WriteError classifies err and writes its envelope.
//
// Store failures keep their generic message; the underlying cause goes to the
// request logger only.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	classified := apperrors.Classify(err)
	if classified == nil {
		classified = &apperrors.Error{Kind: apperrors.KindInternal, Message: "internal server error"}
	}
	status := classified.Kind.HTTPStatus()

	if status >= http.StatusInternalServerError {
		LoggerFrom(r.Context()).Error("request failed",
			zap.String("code", string(classified.Kind)),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err),
		)
	}

	message := classified.Message
	if message == "" || classified.Kind == apperrors.KindInternal {
		message = http.StatusText(status)
	}
	WriteEnvelope(w, r, string(classified.Kind), message, status)
}

// WriteEnvelope writes an error with an explicit code and message.
func WriteEnvelope(w http.ResponseWriter, r *http.Request, code, message string, status int) {
	env := errors.NewErrorEnvelope(code, message)
	if id := GetRequestID(r.Context()); id != "" {
		env = env.WithCorrelationID(id)
	}
	writeErrorResponse(w, env, status)
}

// WriteEnvelopeDetails writes an error carrying structured details.
func WriteEnvelopeDetails(w http.ResponseWriter, r *http.Request, code, message string, status int, details map[string]any) {
	env := errors.NewErrorEnvelope(code, message)
	if id := GetRequestID(r.Context()); id != "" {
		env = env.WithCorrelationID(id)
	}
	resp := newErrorResponse(env)
	if len(details) > 0 {
		resp.Error.Details = details
	}
	writeJSONError(w, resp, status)
}

// NotFound is the router's fallback for unknown paths.
func NotFound(w http.ResponseWriter, r *http.Request) {
	WriteEnvelope(w, r, string(apperrors.KindNotFound), "route not found", http.StatusNotFound)
}

// MethodNotAllowed is the router's fallback for known paths with the wrong method.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	WriteEnvelope(w, r, string(apperrors.KindMethodNotAllowed),
		fmt.Sprintf("method %s not allowed", r.Method), http.StatusMethodNotAllowed)
}

func writeErrorResponse(w http.ResponseWriter, env *errors.ErrorEnvelope, status int) {
	writeJSONError(w, newErrorResponse(env), status)
}

func newErrorResponse(env *errors.ErrorEnvelope) ErrorResponse {
	return ErrorResponse{Error: ErrorBody{
		Code:      env.Code,
		Message:   env.Message,
		RequestID: env.CorrelationID,
		Details:   envelopeDetails(env),
	}}
}

func writeJSONError(w http.ResponseWriter, resp ErrorResponse, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// envelopeDetails extracts structured context attached with WithContext.
func envelopeDetails(env *errors.ErrorEnvelope) map[string]any {
	raw, err := json.Marshal(env)
	if err != nil {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil
	}
	for _, key := range []string{"context", "details"} {
		v, ok := fields[key]
		if !ok {
			continue
		}
		var details map[string]any
		if err := json.Unmarshal(v, &details); err == nil && len(details) > 0 {
			return details
		}
	}
	return nil
}
