package cookieauth

import (
	"encoding/json"
	"net/http"
)

// Error codes.  These are stable and meant for programmatic branching; the
// accompanying messages are not.
const (
	CodeUnauthorized             = "unauthorized"
	CodeAuthenticationFailed     = "authentication failed"
	CodeUnexpectedError          = "unexpected error"
	CodeJWTExpired               = "jwt expired"
	CodeInvalidEmail             = "invalid email"
	CodeInvalidPassword          = "invalid password"
	CodeMissingEmail             = "missing email"
	CodeMissingEmailOrPassword   = "missing email or password"
	CodeAccountNotConfirmed      = "account not confirmed"
	CodeInvalidToken             = "invalid token"
	CodeMissingToken             = "missing token"
	CodeMissingPassword          = "missing password"
	CodeTokenMissing             = "token missing"
	CodeNoUserOrInvalidState     = "no user or user in invalid state"
	CodeInvalidCurrentPassword   = "invalid current password"
	CodeInvalidNewPassword       = "invalid new password"
	CodeMissingCurrentPassword   = "missing current password"
	CodeMissingNewPassword       = "missing new password"
	CodeMissingProviderOrMethod  = "missing identity_provider or method"
	CodeUnknownProvider          = "unknown identity_provider"
	CodeUnknownMethod            = "unknown method"
	CodeOpenAuthenticationFailed = "open authentication failed"
)

// APIError is the error half of the response envelope.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// Envelope wraps every JSON response: {data: ...} or {error: {code, message}}.
type Envelope struct {
	Data  any       `json:"data,omitempty"`
	Error *APIError `json:"error,omitempty"`
}

// OK is the data of a plain successful response.
type OK struct {
	OK bool `json:"ok"`
}

func writeEnvelope(w http.ResponseWriter, status int, body Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, data any) {
	writeEnvelope(w, http.StatusOK, Envelope{Data: data})
}

func writeOK(w http.ResponseWriter) {
	writeData(w, OK{OK: true})
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeEnvelope(w, status, Envelope{Error: &APIError{Code: code, Message: message}})
}
