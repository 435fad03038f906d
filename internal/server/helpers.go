package server

import (
	"encoding/json"
	"net"
	"net/http"

	"github.com/quillagent/quill/internal/actions"
	"github.com/quillagent/quill/pkg/schema"
)

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeCodedError maps a typed error to its HTTP status.
func writeCodedError(w http.ResponseWriter, err error) {
	writeError(w, statusForCode(schema.CodeOf(err)), err.Error())
}

// statusForResponse maps an execution envelope to an HTTP status. The
// envelope body stays the same either way; only the status line reflects the
// error class.
func statusForResponse(resp actions.Response) int {
	if resp.Status == actions.StatusSuccess {
		return http.StatusOK
	}
	return statusForCode(resp.Code)
}

func statusForCode(code string) int {
	switch code {
	case schema.ErrCodeNotFound:
		return http.StatusNotFound
	case schema.ErrCodeValidation:
		return http.StatusBadRequest
	case schema.ErrCodeConflict:
		return http.StatusConflict
	case schema.ErrCodePolicyDenied:
		return http.StatusForbidden
	case schema.ErrCodeUnauthenticated, schema.ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// isLocalRequest reports whether the request arrived over loopback. Token
// submission is restricted to localhost.
func isLocalRequest(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
