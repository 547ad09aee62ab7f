package response

import (
	"encoding/json"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Every JSON body leaves through this package so the envelope and the
// RFC 9457 problem shape stay consistent across handlers.

type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
	Meta    meta        `json:"meta"`
}

type apiError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type meta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

type problemDetails struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Detail    string `json:"detail"`
	Instance  string `json:"instance"`
	Code      string `json:"code"`
	RequestID string `json:"request_id"`
}

func JSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data, Meta: buildMeta(r)})
}

// Error writes the failure envelope, or an RFC 9457 problem document
// when the client asked for application/problem+json.
func Error(w http.ResponseWriter, r *http.Request, status int, code, message string, details interface{}) {
	if prefersProblemJSON(r) {
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(problemDetails{
			Type:      problemType(code),
			Title:     problemTitle(code, status),
			Status:    status,
			Detail:    message,
			Instance:  r.URL.Path,
			Code:      code,
			RequestID: buildMeta(r).RequestID,
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{
		Success: false,
		Error:   &apiError{Code: code, Message: message, Details: details},
		Meta:    buildMeta(r),
	})
}

func buildMeta(r *http.Request) meta {
	id := chimiddleware.GetReqID(r.Context())
	if id == "" {
		id = r.Header.Get("X-Request-Id")
	}
	if id == "" {
		id = "req-unknown"
	}
	return meta{RequestID: id, Timestamp: time.Now().UTC()}
}

// prefersProblemJSON reports whether any Accept member names
// application/problem+json with a non-zero quality.
func prefersProblemJSON(r *http.Request) bool {
	for _, member := range strings.Split(r.Header.Get("Accept"), ",") {
		member = strings.TrimSpace(member)
		if member == "" {
			continue
		}
		mediaType, params, err := mime.ParseMediaType(member)
		if err != nil || mediaType != "application/problem+json" {
			continue
		}
		if raw, ok := params["q"]; ok {
			if q, err := strconv.ParseFloat(raw, 64); err == nil && q == 0 {
				continue
			}
		}
		return true
	}
	return false
}

func problemType(code string) string {
	slug := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(code)), "_", "-")
	if slug == "" {
		slug = "unknown"
	}
	return "urn:problem:identity:" + slug
}

var problemTitles = map[string]string{
	"BAD_REQUEST":                 "Bad Request",
	"UNAUTHORIZED":                "Unauthorized",
	"FORBIDDEN":                   "Forbidden",
	"CONFLICT":                    "Conflict",
	"NOT_FOUND":                   "Not Found",
	"INTERNAL":                    "Internal Server Error",
	"RATE_LIMITED":                "Too Many Requests",
	"DEPENDENCY_UNREADY":          "Service Unavailable",
	"INVALID_SESSION":             "Invalid or Expired Session",
	"SESSION_EXPIRED":             "Invalid or Expired Session",
	"EMAIL_VERIFICATION_REQUIRED": "Email Verification Required",
	"INVALID_CODE":                "Invalid Verification Code",
	"INVALID_STATE":               "Invalid OAuth State",
}

func problemTitle(code string, status int) string {
	if title, ok := problemTitles[strings.ToUpper(strings.TrimSpace(code))]; ok {
		return title
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return "Error"
}
