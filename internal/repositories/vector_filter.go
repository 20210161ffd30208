package repositories

import (
	"encoding/json"
	"fmt"
)

// DocumentIDField is the metadata field every chunk carries its document id in.
const DocumentIDField = "document_id"

const (
	opEq = "$eq"
	opIn = "$in"
)

// Filter is a predicate over a chunk's document id: either exact match or
// set membership.
type Filter struct {
	op  string
	ids []string
}

// FilterEq matches chunks of a single document.
func FilterEq(documentID string) *Filter {
	return &Filter{op: opEq, ids: []string{documentID}}
}

// FilterIn matches chunks of any of the given documents. A single id is
// expressed as an exact match.
func FilterIn(documentIDs ...string) *Filter {
	if len(documentIDs) == 1 {
		return FilterEq(documentIDs[0])
	}
	ids := make([]string, len(documentIDs))
	copy(ids, documentIDs)
	return &Filter{op: opIn, ids: ids}
}

// DocumentIDs returns the ids the filter admits.
func (f *Filter) DocumentIDs() []string {
	if f == nil {
		return nil
	}
	out := make([]string, len(f.ids))
	copy(out, f.ids)
	return out
}

// Where serializes the filter into the vector store's where grammar:
//
//	{"document_id": {"$eq": "a"}}
//	{"document_id": {"$in": ["a", "b"]}}
func (f *Filter) Where() map[string]interface{} {
	if f == nil {
		return nil
	}
	var operand interface{}
	if f.op == opEq && len(f.ids) == 1 {
		operand = f.ids[0]
	} else {
		operand = f.DocumentIDs()
	}
	return map[string]interface{}{
		DocumentIDField: map[string]interface{}{f.op: operand},
	}
}

func (f *Filter) String() string {
	data, err := json.Marshal(f.Where())
	if err != nil {
		return fmt.Sprintf("%v", f.Where())
	}
	return string(data)
}

// ValidateWhere checks a serialized where clause against the grammar the
// index stores chunks under. A clause the store would silently match nothing
// with (wrong field, wrong operand type, unknown operator) is rejected.
func ValidateWhere(where map[string]interface{}) error {
	const op = "validate_filter"

	if len(where) != 1 {
		return invalidFilterError(op, fmt.Sprintf("expected exactly one field, got %d", len(where)))
	}
	clause, ok := where[DocumentIDField]
	if !ok {
		for field := range where {
			return invalidFilterError(op, "unsupported field "+field)
		}
	}

	predicate, ok := clause.(map[string]interface{})
	if !ok {
		return invalidFilterError(op, fmt.Sprintf("%s must map to an operator object, got %T", DocumentIDField, clause))
	}
	if len(predicate) != 1 {
		return invalidFilterError(op, fmt.Sprintf("expected exactly one operator, got %d", len(predicate)))
	}

	for operator, operand := range predicate {
		switch operator {
		case opEq:
			s, ok := operand.(string)
			if !ok {
				return invalidFilterError(op, fmt.Sprintf("$eq operand must be a string, got %T", operand))
			}
			if s == "" {
				return invalidFilterError(op, "$eq operand is empty")
			}
		case opIn:
			values, err := stringValues(operand)
			if err != nil {
				return invalidFilterError(op, err.Error())
			}
			if len(values) == 0 {
				return invalidFilterError(op, "$in operand is empty")
			}
			for _, v := range values {
				if v == "" {
					return invalidFilterError(op, "$in contains an empty id")
				}
			}
		default:
			return invalidFilterError(op, "unsupported operator "+operator)
		}
	}
	return nil
}

func stringValues(operand interface{}) ([]string, error) {
	switch v := operand.(type) {
	case []string:
		return v, nil
	case []interface{}:
		out := make([]string, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("$in element %d must be a string, got %T", i, item)
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("$in operand must be an array, got %T", operand)
	}
}
