package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/lychee-technology/docschema"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// parsePath parses /api/v1/{collection}, /api/v1/{collection}/{id} or
// /api/v1/{collection}/{id}/history
func parsePath(path string) (collection, id, sub string, err error) {
	path = strings.TrimPrefix(path, "/api/v1/")
	path = strings.Trim(path, "/")

	if path == "" {
		return "", "", "", fmt.Errorf("invalid path: empty collection name")
	}

	parts := strings.Split(path, "/")

	switch len(parts) {
	case 1:
		return parts[0], "", "", nil
	case 2:
		return parts[0], parts[1], "", nil
	case 3:
		if parts[2] != "history" {
			return "", "", "", fmt.Errorf("unknown resource: %s", parts[2])
		}
		return parts[0], parts[1], parts[2], nil
	default:
		return "", "", "", fmt.Errorf("invalid path format")
	}
}

// parseID turns a path segment into an integer id when it is numeric.
func parseID(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return s
}

// parseFindOptions extracts fields, skip, limit and sort from query parameters.
// sort takes comma separated fields; a leading '-' sorts descending.
func parseFindOptions(queryParams url.Values) (docschema.FindOptions, error) {
	opts := docschema.FindOptions{Limit: defaultLimit}

	if f := queryParams.Get("fields"); f != "" {
		for _, field := range strings.Split(f, ",") {
			if field = strings.TrimSpace(field); field != "" {
				opts.Fields = append(opts.Fields, field)
			}
		}
	}

	if s := queryParams.Get("skip"); s != "" {
		parsed, err := strconv.Atoi(s)
		if err != nil || parsed < 0 {
			return opts, fmt.Errorf("skip must be a non-negative integer")
		}
		opts.Skip = parsed
	}

	if l := queryParams.Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed <= 0 {
			return opts, fmt.Errorf("limit must be a positive integer")
		}
		if parsed > maxLimit {
			parsed = maxLimit
		}
		opts.Limit = parsed
	}

	for _, raw := range queryParams["sort"] {
		for _, field := range strings.Split(raw, ",") {
			field = strings.TrimSpace(field)
			if field == "" || field == "-" {
				continue
			}
			order := docschema.SortOrderAsc
			if strings.HasPrefix(field, "-") {
				order = docschema.SortOrderDesc
				field = field[1:]
			}
			opts.Sort = append(opts.Sort, docschema.SortField{Field: field, Order: order})
		}
	}

	return opts, nil
}

// parseSpec reads the optional q parameter, a JSON-encoded query spec.
func parseSpec(queryParams url.Values) (docschema.Spec, error) {
	q := queryParams.Get("q")
	if q == "" {
		return docschema.Spec{}, nil
	}
	v, err := decodeJSON(strings.NewReader(q))
	if err != nil {
		return nil, fmt.Errorf("invalid q: %w", err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("invalid q: must be an object")
	}
	if _, err := docschema.ParseSpec(m); err != nil {
		return nil, fmt.Errorf("invalid q: %w", err)
	}
	return docschema.Spec(m), nil
}

// decodeJSON decodes one JSON value keeping integers as int64.
func decodeJSON(r io.Reader) (any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected trailing data")
	}
	return plainNumbers(v), nil
}

func plainNumbers(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, item := range val {
			val[k] = plainNumbers(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = plainNumbers(item)
		}
		return val
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, _ := val.Float64()
		return f
	default:
		return v
	}
}

// readJSONBody reads and decodes JSON from request body
func readJSONBody(r *http.Request) (any, error) {
	defer r.Body.Close()
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	return decodeJSON(bytes.NewReader(data))
}

// APIResponse is the error response format
type APIResponse struct {
	Success bool     `json:"success"`
	Data    any      `json:"data,omitempty"`
	Error   string   `json:"error,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

// writeJSON writes JSON response to http.ResponseWriter
func writeJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// writeError writes an error response
func writeError(w http.ResponseWriter, statusCode int, message string) error {
	return writeJSON(w, statusCode, APIResponse{
		Success: false,
		Error:   message,
	})
}

// writeSuccess writes a success response
func writeSuccess(w http.ResponseWriter, statusCode int, data any) error {
	return writeJSON(w, statusCode, data)
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	var de *docschema.DocError
	if !errors.As(err, &de) {
		return http.StatusInternalServerError
	}
	switch de.Type {
	case docschema.ErrorTypeValidation, docschema.ErrorTypeReference:
		return http.StatusUnprocessableEntity
	case docschema.ErrorTypeIntegrity:
		return http.StatusConflict
	case docschema.ErrorTypeNotFound:
		return http.StatusNotFound
	case docschema.ErrorTypeContract:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeEngineError writes err with its path-qualified messages.
func writeEngineError(w http.ResponseWriter, err error) error {
	return writeJSON(w, statusFor(err), APIResponse{
		Success: false,
		Error:   err.Error(),
		Errors:  docschema.Messages(err),
	})
}
