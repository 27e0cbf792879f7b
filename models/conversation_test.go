package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConversationIDIsOrderIndependent(t *testing.T) {
	assert.Equal(t, "alice_bob", ConversationID("alice", "bob"))
	assert.Equal(t, "alice_bob", ConversationID("bob", "alice"))
	assert.Equal(t, ConversationID("model_42", "client_7"), ConversationID("client_7", "model_42"))
}

func TestConversationIDDistinctPairs(t *testing.T) {
	assert.NotEqual(t, ConversationID("alice", "bob"), ConversationID("alice", "carol"))
}
