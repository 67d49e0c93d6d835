package ctxkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeys(t *testing.T) {
	tests := []struct {
		name string
		with func(context.Context, string) context.Context
		get  func(context.Context) (string, bool)
	}{
		{"conversation", WithConversationID, ConversationID},
		{"query", WithQueryID, QueryID},
		{"model", WithLLMModel, LLMModel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := tt.get(context.Background())
			assert.False(t, ok)

			_, ok = tt.get(tt.with(context.Background(), ""))
			assert.False(t, ok)

			v, ok := tt.get(tt.with(context.Background(), "abc"))
			assert.True(t, ok)
			assert.Equal(t, "abc", v)
		})
	}
}

func TestKeysDoNotCollide(t *testing.T) {
	ctx := WithConversationID(context.Background(), "c1")
	ctx = WithQueryID(ctx, "q1")

	conv, _ := ConversationID(ctx)
	query, _ := QueryID(ctx)
	_, hasModel := LLMModel(ctx)
	assert.Equal(t, "c1", conv)
	assert.Equal(t, "q1", query)
	assert.False(t, hasModel)
}
