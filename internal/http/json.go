package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/dealshub/dealshub-go/internal/errors"
)

// Request bodies here are credentials and profile edits; anything larger is abuse.
const maxJSONBodyBytes = 64 << 10

// DecodeJSON reads a single JSON object into dst. On failure it writes a 400
// (413 for oversized bodies) and returns false.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes))
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err == nil && dec.More() {
		err = errors.New("body must contain a single JSON object")
	}
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		WriteError(w, ErrorParams{Code: http.StatusRequestEntityTooLarge, ErrCode: "body_too_large", Err: err})
		return false
	}
	WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_json", Err: err})
	return false
}

// WriteJSON marshals v before touching the response so an encoding failure
// can still produce a clean 500. Auth responses are never cacheable.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_, _ = w.Write(append(body, '\n'))
}

// ErrorParams groups parameters for WriteError.
type ErrorParams struct {
	Code    int
	ErrCode string
	Err     error
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteError writes {"error": code, "message": text}.
func WriteError(w http.ResponseWriter, p ErrorParams) {
	msg := http.StatusText(p.Code)
	if p.Err != nil {
		msg = p.Err.Error()
	}
	WriteJSON(w, p.Code, errorBody{Error: p.ErrCode, Message: msg})
}

// WriteAppError maps an application error to a status code and writes it.
// Unclassified errors are reported as 500 without leaking their message.
func WriteAppError(w http.ResponseWriter, err error) {
	code, errCode := statusForError(err)
	if code == http.StatusInternalServerError {
		WriteError(w, ErrorParams{Code: code, ErrCode: errCode, Err: errors.New("internal error")})
		return
	}
	msg := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		msg = appErr.Message
	}
	WriteError(w, ErrorParams{Code: code, ErrCode: errCode, Err: errors.New(msg)})
}

func statusForError(err error) (int, string) {
	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeValidation:
		return http.StatusBadRequest, "invalid_request"
	case apperrors.ErrCodeUnauthorized:
		return http.StatusUnauthorized, "authentication_required"
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound, "not_found"
	case apperrors.ErrCodeConflict:
		return http.StatusConflict, "conflict"
	case apperrors.ErrCodeAuthBackend:
		return http.StatusBadGateway, "auth_backend_error"
	case apperrors.ErrCodeNetwork:
		return http.StatusServiceUnavailable, "auth_backend_unreachable"
	case apperrors.ErrCodeTimeout:
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
