package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
)

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse acknowledges a mutation
type MessageResponse struct {
	Message string `json:"message"`
	ID      int64  `json:"id,omitempty"`
}

var errBodyTooLarge = errors.New("request body too large")

// sendJSON sends a JSON response
func (s *Server) sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// sendError sends an error response
func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: message})
}

// decodeBody reads a JSON object. Missing, empty or malformed bodies yield
// the zero value. Only an oversized body is an error.
func decodeBody[T any](r *http.Request) (T, error) {
	var v T
	if r.Body == nil {
		return v, nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return v, errBodyTooLarge
		}
		return v, nil
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return v, nil
	}

	if err := json.Unmarshal(data, &v); err != nil {
		var zero T
		return zero, nil
	}
	return v, nil
}

// readBody decodes the request body and answers 413 when it is oversized
func readBody[T any](s *Server, w http.ResponseWriter, r *http.Request) (T, bool) {
	v, err := decodeBody[T](r)
	if err != nil {
		s.sendError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		return v, false
	}
	return v, true
}

// urlID parses the {name} path parameter as a record id
func urlID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// flexInt64 accepts a JSON number or a numeric string
type flexInt64 struct {
	Value int64
	// Set is false for absent, null, zero and empty values
	Set bool
	// Valid is false when a set value is not an integer
	Valid bool
}

// UnmarshalJSON implements json.Unmarshaler. It never fails so one odd
// field does not discard the rest of the body.
func (f *flexInt64) UnmarshalJSON(data []byte) error {
	*f = flexInt64{}

	var raw interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil
	}

	switch v := raw.(type) {
	case nil:
		return nil
	case json.Number:
		if n, err := v.Int64(); err == nil {
			f.Value, f.Valid = n, true
		} else if fl, err := v.Float64(); err == nil && fl == math.Trunc(fl) && math.Abs(fl) < math.MaxInt64 {
			f.Value, f.Valid = int64(fl), true
		}
		f.Set = !f.Valid || f.Value != 0
	case string:
		v = strings.TrimSpace(v)
		f.Set = v != ""
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.Value, f.Valid = n, true
		}
	default:
		f.Set = true
	}
	return nil
}

// flexInt64List accepts an array of numbers or numeric strings. Anything
// else, and any entry that is not an integer, is ignored.
type flexInt64List []int64

// UnmarshalJSON implements json.Unmarshaler
func (l *flexInt64List) UnmarshalJSON(data []byte) error {
	*l = nil

	var items []flexInt64
	if err := json.Unmarshal(data, &items); err != nil {
		return nil
	}
	for _, item := range items {
		if item.Valid {
			*l = append(*l, item.Value)
		}
	}
	return nil
}
