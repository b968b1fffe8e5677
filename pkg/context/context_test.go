package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequest(t *testing.T) {
	assert.Equal(t, Request{}, RequestFrom(context.Background()))
	assert.Empty(t, GetRequestID(context.Background()))

	ctx := WithRequest(context.Background(), Request{ID: "req-1", Method: "GET", Entity: "user"})
	assert.Equal(t, "req-1", GetRequestID(ctx))
	assert.Equal(t, "user", GetEntity(ctx))
	assert.Equal(t, "GET", RequestFrom(ctx).Method)
}
