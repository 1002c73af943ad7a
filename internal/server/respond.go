package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	havenerr "github.com/havenos/haven/pkg/haven/errors"
)

const maxRequestBodySize = 4 << 20 // 4 MB

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// errorBody is the envelope of every failed request.
type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError maps err onto its HTTP status and logs server-side failures.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := havenerr.StatusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"error", err)
	} else {
		s.logger.DebugContext(r.Context(), "request rejected",
			"path", r.URL.Path,
			"status", status,
			"error", err)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

// readBody returns the raw request body, capped at maxRequestBodySize.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, havenerr.Invalid("request body exceeds %d bytes", tooLarge.Limit)
		}
		return nil, fmt.Errorf("reading request body: %w", err)
	}
	return body, nil
}

// readJSON decodes and validates a JSON request body.
func readJSON[T any](w http.ResponseWriter, r *http.Request) (T, error) {
	var v T
	body, err := readBody(w, r)
	if err != nil {
		return v, err
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return v, havenerr.Invalid("request body is empty")
	}
	if err := json.Unmarshal(body, &v); err != nil {
		return v, havenerr.Invalid("invalid request body: %v", err)
	}
	if err := validateRequest(v); err != nil {
		return v, err
	}
	return v, nil
}

func validateRequest(v any) error {
	if reflect.Indirect(reflect.ValueOf(v)).Kind() != reflect.Struct {
		return nil
	}
	err := validate.Struct(v)
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of %s", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", ")))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag()))
		}
	}
	return havenerr.Invalid("%s", strings.Join(msgs, "; "))
}
