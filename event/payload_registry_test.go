package event

import (
	"testing"

	"github.com/c360studio/semstreams/payloadregistry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterPayloads(t *testing.T) {
	reg := payloadregistry.NewWithSubset(t, RegisterPayloads)

	created := reg.Create("task", "pending_match", "v1")
	require.NotNil(t, created)
	assert.IsType(t, &TaskPendingMatchEvent{}, created)

	created = reg.Create("broker", "message", "v1")
	require.NotNil(t, created)
	assert.IsType(t, &BrokerQueueMessage{}, created)
}

func TestRegisterPayloadsRejectsDuplicates(t *testing.T) {
	reg := payloadregistry.NewWithSubset(t, RegisterPayloads)
	assert.Error(t, RegisterPayloads(reg))
}
