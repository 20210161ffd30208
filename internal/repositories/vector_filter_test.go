package repositories

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejasgodse24/chat-with-pdf/internal/apperrors"
)

func TestFilter_Where(t *testing.T) {
	assert.Equal(t,
		map[string]interface{}{"document_id": map[string]interface{}{"$eq": "a"}},
		FilterEq("a").Where())

	assert.Equal(t,
		map[string]interface{}{"document_id": map[string]interface{}{"$in": []string{"a", "b"}}},
		FilterIn("a", "b").Where())

	// single id collapses to exact match
	assert.Equal(t, FilterEq("a").Where(), FilterIn("a").Where())

	var nilFilter *Filter
	assert.Nil(t, nilFilter.Where())
}

func TestFilter_String(t *testing.T) {
	assert.Equal(t, `{"document_id":{"$in":["a","b"]}}`, FilterIn("a", "b").String())
}

func TestValidateWhere(t *testing.T) {
	tests := []struct {
		name    string
		where   string
		wantErr bool
	}{
		{"eq", `{"document_id":{"$eq":"a"}}`, false},
		{"in", `{"document_id":{"$in":["a","b"]}}`, false},
		{"bare value instead of operator", `{"document_id":"a"}`, true},
		{"wrong field", `{"file_id":{"$eq":"a"}}`, true},
		{"two fields", `{"document_id":{"$eq":"a"},"x":{"$eq":"b"}}`, true},
		{"no fields", `{}`, true},
		{"numeric eq", `{"document_id":{"$eq":1}}`, true},
		{"empty eq", `{"document_id":{"$eq":""}}`, true},
		{"in with scalar", `{"document_id":{"$in":"a"}}`, true},
		{"in with number", `{"document_id":{"$in":["a",2]}}`, true},
		{"empty in", `{"document_id":{"$in":[]}}`, true},
		{"unknown operator", `{"document_id":{"$ne":"a"}}`, true},
		{"two operators", `{"document_id":{"$eq":"a","$in":["b"]}}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var where map[string]interface{}
			require.NoError(t, json.Unmarshal([]byte(tt.where), &where))

			err := ValidateWhere(where)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, apperrors.ErrInvalidFilter)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateWhere_AcceptsBuiltFilters(t *testing.T) {
	assert.NoError(t, ValidateWhere(FilterEq("a").Where()))
	assert.NoError(t, ValidateWhere(FilterIn("a", "b", "c").Where()))
	assert.Error(t, ValidateWhere(FilterIn().Where()))
}
