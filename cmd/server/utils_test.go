package main

import (
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"testing"

	"github.com/lychee-technology/docschema"
)

func TestParseFindOptions(t *testing.T) {
	tests := []struct {
		name        string
		params      url.Values
		want        docschema.FindOptions
		expectError bool
	}{
		{
			name:   "defaults",
			params: url.Values{},
			want:   docschema.FindOptions{Limit: defaultLimit},
		},
		{
			name: "fields skip and limit",
			params: url.Values{
				"fields": {"name, address.city ,"},
				"skip":   {"10"},
				"limit":  {"5"},
			},
			want: docschema.FindOptions{Fields: []string{"name", "address.city"}, Skip: 10, Limit: 5},
		},
		{
			name:   "limit is capped",
			params: url.Values{"limit": {"1000"}},
			want:   docschema.FindOptions{Limit: maxLimit},
		},
		{
			name:   "multi sort with csv and descending prefix",
			params: url.Values{"sort": {"-age,name ", " score"}},
			want: docschema.FindOptions{
				Limit: defaultLimit,
				Sort: []docschema.SortField{
					{Field: "age", Order: docschema.SortOrderDesc},
					{Field: "name", Order: docschema.SortOrderAsc},
					{Field: "score", Order: docschema.SortOrderAsc},
				},
			},
		},
		{
			name:        "negative skip",
			params:      url.Values{"skip": {"-1"}},
			expectError: true,
		},
		{
			name:        "zero limit",
			params:      url.Values{"limit": {"0"}},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFindOptions(tt.params)

			if tt.expectError {
				if err == nil {
					t.Fatalf("expected error but got nil")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if !reflect.DeepEqual(tt.want, got) {
				t.Fatalf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestParsePath(t *testing.T) {
	tests := []struct {
		path                string
		collection, id, sub string
		expectError         bool
	}{
		{path: "/api/v1/users", collection: "users"},
		{path: "/api/v1/users/", collection: "users"},
		{path: "/api/v1/users/7", collection: "users", id: "7"},
		{path: "/api/v1/users/7/history", collection: "users", id: "7", sub: "history"},
		{path: "/api/v1/users/7/friends", expectError: true},
		{path: "/api/v1/", expectError: true},
		{path: "/api/v1/a/b/c/d", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			collection, id, sub, err := parsePath(tt.path)
			if tt.expectError {
				if err == nil {
					t.Fatalf("expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if collection != tt.collection || id != tt.id || sub != tt.sub {
				t.Fatalf("got (%q, %q, %q)", collection, id, sub)
			}
		})
	}
}

func TestParseID(t *testing.T) {
	if got := parseID("42"); got != int64(42) {
		t.Fatalf("expected int64 42, got %#v", got)
	}
	if got := parseID("abc"); got != "abc" {
		t.Fatalf("expected string id, got %#v", got)
	}
}

func TestParseSpec(t *testing.T) {
	spec, err := parseSpec(url.Values{"q": {`{"age": {"$gte": 18}}`}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := docschema.Spec{"age": map[string]any{"$gte": int64(18)}}
	if !reflect.DeepEqual(want, spec) {
		t.Fatalf("expected %v, got %v", want, spec)
	}

	if _, err := parseSpec(url.Values{"q": {`[1, 2]`}}); err == nil {
		t.Fatalf("expected error for non-object q")
	}
	if _, err := parseSpec(url.Values{"q": {`{"age": {"$like": 1}}`}}); err == nil {
		t.Fatalf("expected error for unknown operator")
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{docschema.NewValidationError([]string{"name: Field is required"}), http.StatusUnprocessableEntity},
		{docschema.NewReferenceIntegrityError(nil), http.StatusConflict},
		{docschema.NewDocumentNotFoundError("users", 1), http.StatusNotFound},
		{docschema.ErrMissingID, http.StatusBadRequest},
		{docschema.NewStorageError("boom", nil), http.StatusInternalServerError},
		{fmt.Errorf("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Fatalf("%v: expected %d, got %d", tt.err, tt.want, got)
		}
	}
}
