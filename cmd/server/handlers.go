package main

import (
	"fmt"
	"net/http"

	"github.com/lychee-technology/docschema"
	"go.uber.org/zap"
)

// usernameHeader names the caller recorded in history entries.
const usernameHeader = "X-Username"

func writeOptions(r *http.Request) docschema.WriteOptions {
	return docschema.WriteOptions{Username: r.Header.Get(usernameHeader)}
}

// apiHandler dispatches /api/v1/ requests by method and path shape.
func (s *Server) apiHandler(w http.ResponseWriter, r *http.Request) {
	_, id, sub, err := parsePath(r.URL.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid path: %v", err))
		return
	}

	switch {
	case sub == "history":
		s.handleHistory(w, r)
	case id == "" && r.Method == http.MethodPost:
		s.handleCreate(w, r)
	case id == "" && r.Method == http.MethodGet:
		s.handleQuery(w, r)
	case id != "" && r.Method == http.MethodGet:
		s.handleGet(w, r)
	case id != "" && r.Method == http.MethodPut:
		s.handleUpdate(w, r)
	case id != "" && r.Method == http.MethodDelete:
		s.handleDelete(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) collection(w http.ResponseWriter, name string) (docschema.Collection, bool) {
	coll, err := s.engine.Collection(name)
	if err != nil {
		writeEngineError(w, err)
		return nil, false
	}
	return coll, true
}

// handleCreate handles POST /api/v1/{collection} with an object or an array
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	name, _, _, err := parsePath(r.URL.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid path: %v", err))
		return
	}
	coll, ok := s.collection(w, name)
	if !ok {
		return
	}

	body, err := readJSONBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json body: %v", err))
		return
	}

	switch v := body.(type) {
	case map[string]any:
		id, err := coll.Insert(r.Context(), v, writeOptions(r))
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeSuccess(w, http.StatusCreated, map[string]any{docschema.IDField: id})
	case []any:
		if len(v) == 0 {
			writeError(w, http.StatusBadRequest, "empty array not allowed")
			return
		}
		docs := make([]map[string]any, len(v))
		for i, item := range v {
			doc, ok := item.(map[string]any)
			if !ok {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("item %d is not an object", i))
				return
			}
			docs[i] = doc
		}
		ids, err := coll.InsertMany(r.Context(), docs, writeOptions(r))
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeSuccess(w, http.StatusCreated, map[string]any{"ids": ids})
	default:
		writeError(w, http.StatusBadRequest, "body must be an object or array")
	}
}

// handleQuery handles GET /api/v1/{collection}?q=...&fields=...&skip=...&limit=...&sort=...
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	name, _, _, err := parsePath(r.URL.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid path: %v", err))
		return
	}
	coll, ok := s.collection(w, name)
	if !ok {
		return
	}

	queryParams := r.URL.Query()
	opts, err := parseFindOptions(queryParams)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	spec, err := parseSpec(queryParams)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, err := coll.FindAndSerialize(r.Context(), spec, opts)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	total, err := coll.Count(r.Context(), spec)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if items == nil {
		items = []map[string]any{}
	}

	writeSuccess(w, http.StatusOK, map[string]any{
		"items": items,
		"total": total,
		"skip":  opts.Skip,
		"limit": opts.Limit,
	})
}

// handleGet handles GET /api/v1/{collection}/{id}?fields=...
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	name, rawID, _, err := parsePath(r.URL.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid path: %v", err))
		return
	}
	coll, ok := s.collection(w, name)
	if !ok {
		return
	}
	opts, err := parseFindOptions(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := parseID(rawID)
	doc, err := coll.FindOneAndSerialize(r.Context(), id, docschema.FindOptions{Fields: opts.Fields})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if doc == nil {
		writeEngineError(w, docschema.NewDocumentNotFoundError(name, id))
		return
	}

	writeSuccess(w, http.StatusOK, doc)
}

// handleUpdate handles PUT /api/v1/{collection}/{id}
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	name, rawID, _, err := parsePath(r.URL.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid path: %v", err))
		return
	}
	coll, ok := s.collection(w, name)
	if !ok {
		return
	}

	body, err := readJSONBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json body: %v", err))
		return
	}
	doc, ok := body.(map[string]any)
	if !ok {
		writeError(w, http.StatusBadRequest, "body must be an object")
		return
	}

	id := parseID(rawID)
	doc[docschema.IDField] = id
	if err := coll.Update(r.Context(), doc, writeOptions(r)); err != nil {
		writeEngineError(w, err)
		return
	}

	updated, err := coll.FindOneAndSerialize(r.Context(), id, docschema.FindOptions{})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, updated)
}

// handleDelete handles DELETE /api/v1/{collection}/{id}
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	name, rawID, _, err := parsePath(r.URL.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid path: %v", err))
		return
	}
	coll, ok := s.collection(w, name)
	if !ok {
		return
	}

	id := parseID(rawID)
	removed, err := coll.Remove(r.Context(), id, writeOptions(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if removed == 0 {
		writeEngineError(w, docschema.NewDocumentNotFoundError(name, id))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleHistory handles GET /api/v1/{collection}/{id}/history
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	name, rawID, _, err := parsePath(r.URL.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid path: %v", err))
		return
	}
	if _, ok := s.collection(w, name); !ok {
		return
	}

	entries, err := s.engine.History(r.Context(), name, parseID(rawID))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if entries == nil {
		entries = []docschema.HistoryEntry{}
	}
	writeSuccess(w, http.StatusOK, entries)
}

// handleHealth handles GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			zap.S().Warnw("health check failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	writeSuccess(w, http.StatusOK, map[string]any{"status": "ok"})
}
