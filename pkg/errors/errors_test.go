package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{code: CodeInvalidAssociationType, want: http.StatusInternalServerError},
		{code: CodeUnknownRelationAlias, want: http.StatusInternalServerError},
		{code: CodeNoFiltersProvided, want: http.StatusBadRequest},
		{code: CodeInvalidDbObjectsArray, want: http.StatusBadRequest},
		{code: CodeUnknownEntity, want: http.StatusNotFound},
		{code: CodeRelatedItemsExist, want: http.StatusConflict},
		{code: CodeSystemCritical, want: http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, New(tt.code, "x").StatusCode())
		})
	}
}

func TestIs(t *testing.T) {
	err := fmt.Errorf("failed to delete user: %w",
		Newf(CodeRelatedItemsExist, "user %d has orders", 1).AddMeta("relation", "orders"))

	assert.ErrorIs(t, err, ErrRelatedItemsExist)
	assert.NotErrorIs(t, err, ErrSystemCritical)
	assert.True(t, IsCode(err, CodeRelatedItemsExist))
	assert.False(t, IsCode(errors.New("plain"), CodeRelatedItemsExist))

	fe, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, "orders", fe.Meta["relation"])
	assert.Equal(t, "RelatedItemsExist: user 1 has orders", fe.Error())
	assert.Equal(t, "NoFiltersProvided", ErrNoFiltersProvided.Error())
}

func TestToHTTPError(t *testing.T) {
	httpErr := New(CodeSystemCritical, "user_type 1 is system critical").AddMeta("id", 1).ToHTTPError()
	assert.Equal(t, "SystemCritical", httpErr.Meta["code"])
	assert.Equal(t, 1, httpErr.Meta["id"])
}

func TestCategoryOf(t *testing.T) {
	assert.Equal(t, CategoryConfig, CategoryOf(CodeDuplicateRelation))
	assert.Equal(t, CategoryRequest, CategoryOf(CodeInvalidFieldString))
	assert.Equal(t, CategoryGuard, CategoryOf(CodeSystemCritical))
}

func TestFromRequest(t *testing.T) {
	alias := Newf(CodeUnknownRelationAlias, "user has no relation %q", "bogus").AddMeta("alias", "bogus")

	tagged := FromRequest(alias)
	fe, ok := As(tagged)
	require.True(t, ok)
	assert.Equal(t, CategoryRequest, fe.Kind())
	assert.Equal(t, http.StatusBadRequest, fe.StatusCode())
	assert.ErrorIs(t, tagged, ErrUnknownRelationAlias)
	assert.Equal(t, "bogus", fe.ToHTTPError().Meta["alias"])

	assert.Equal(t, CategoryConfig, alias.Kind(), "the original error is untouched")
	assert.Equal(t, http.StatusInternalServerError, alias.StatusCode())

	guard := New(CodeRelatedItemsExist, "x")
	assert.Same(t, guard, FromRequest(guard))
	assert.Nil(t, FromRequest(nil))
}
