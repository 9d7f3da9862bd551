package internal

import (
	"sort"

	"github.com/lychee-technology/docschema"
)

// DiffDocuments describes how newDoc differs from oldDoc. Scalar changes
// map the path to the previous value; added and removed fields, list
// membership changes and reorderings map the path to an action descriptor.
// Items of object lists are matched by _id and compared recursively under
// "<path>/<new index>/".
func DiffDocuments(newDoc, oldDoc map[string]any) []docschema.Change {
	return diffObjects(newDoc, oldDoc, "")
}

func diffObjects(newDoc, oldDoc map[string]any, path string) []docschema.Change {
	var changes []docschema.Change
	for _, key := range sortedKeys(newDoc) {
		val := newDoc[key]
		oldVal, existed := oldDoc[key]
		if !existed {
			changes = append(changes, actionChange(path+key, docschema.ActionFieldAdded, nil, false))
			continue
		}
		switch v := val.(type) {
		case map[string]any:
			if oldMap, ok := oldVal.(map[string]any); ok {
				changes = append(changes, diffObjects(v, oldMap, path+key+"/")...)
				continue
			}
		case []any:
			if oldList, ok := oldVal.([]any); ok {
				changes = append(changes, diffLists(v, oldList, path+key)...)
				continue
			}
		}
		if !valuesEqual(val, oldVal) {
			changes = append(changes, docschema.Change{path + key: deepCopyValue(oldVal)})
		}
	}
	for _, key := range sortedKeys(oldDoc) {
		if _, kept := newDoc[key]; !kept {
			changes = append(changes, actionChange(path+key, docschema.ActionFieldRemoved, deepCopyValue(oldDoc[key]), true))
		}
	}
	return changes
}

// diffLists compares list membership as a multiset, then the relative
// order of the surviving members. Object items are identified by _id.
func diffLists(newList, oldList []any, path string) []docschema.Change {
	kind := "item"
	for _, item := range append(append([]any(nil), newList...), oldList...) {
		if _, ok := item.(map[string]any); ok {
			kind = "object"
			break
		}
	}
	oldKeys := listKeys(oldList)
	newKeys := listKeys(newList)

	pending := append([]any(nil), newKeys...)
	var matched []any
	for _, k := range oldKeys {
		if i := indexOfValue(pending, k); i >= 0 {
			matched = append(matched, k)
			pending = append(pending[:i], pending[i+1:]...)
		}
	}

	var changes []docschema.Change
	pending = append([]any(nil), matched...)
	oldMatched := []any{}
	for i, k := range oldKeys {
		if j := indexOfValue(pending, k); j >= 0 {
			pending = append(pending[:j], pending[j+1:]...)
			oldMatched = append(oldMatched, k)
			continue
		}
		changes = append(changes, actionChange(path, kind+" removed", deepCopyValue(oldList[i]), true))
	}

	pending = append([]any(nil), matched...)
	newMatched := []any{}
	for _, k := range newKeys {
		if j := indexOfValue(pending, k); j >= 0 {
			pending = append(pending[:j], pending[j+1:]...)
			newMatched = append(newMatched, k)
			continue
		}
		changes = append(changes, actionChange(path, kind+" added", deepCopyValue(k), true))
	}

	if !valuesEqual(oldMatched, newMatched) {
		changes = append(changes, actionChange(path, docschema.ActionArrayReordered, oldMatched, true))
	}

	if kind == "object" {
		for _, id := range matched {
			oldItem, _ := oldList[indexOfValue(oldKeys, id)].(map[string]any)
			pos := indexOfValue(newKeys, id)
			newItem, _ := newList[pos].(map[string]any)
			if oldItem == nil || newItem == nil {
				continue
			}
			changes = append(changes, diffObjects(newItem, oldItem, docschema.JoinPath(path, pos)+"/")...)
		}
	}
	return changes
}

func actionChange(path, action string, data any, withData bool) docschema.Change {
	desc := map[string]any{"action": action}
	if withData {
		desc["data"] = data
	}
	return docschema.Change{path: desc}
}

// listKeys reduces list items to comparable keys: objects by _id, anything
// else by value.
func listKeys(items []any) []any {
	keys := make([]any, len(items))
	for i, item := range items {
		if m, ok := item.(map[string]any); ok {
			keys[i] = m[docschema.IDField]
			continue
		}
		keys[i] = item
	}
	return keys
}

func indexOfValue(items []any, v any) int {
	for i, item := range items {
		if valuesEqual(item, v) {
			return i
		}
	}
	return -1
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
