package service

import (
	"encoding/json"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ticket-inventory/internal/history"
	"github.com/iliyamo/ticket-inventory/internal/model"
	q "github.com/iliyamo/ticket-inventory/internal/queue"
)

func TestBuildPublishing(t *testing.T) {
	now := time.Date(2026, 1, 9, 12, 0, 0, 0, time.UTC)
	env := history.Envelope{Kind: history.KindAllocation, Allocation: &model.AllocationEvent{
		ID: "evt-1", ScheduleID: 2, Type: model.AllocationAllocate, UnitIDs: []int{4, 5}, AgentID: 9, ActorID: 1, Timestamp: now,
	}}

	msg, err := buildPublishing(env, now)
	require.NoError(t, err)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "evt-1", msg.MessageId)
	assert.Equal(t, "allocation", msg.Type)

	var decoded q.InventoryEvent
	require.NoError(t, json.Unmarshal(msg.Body, &decoded))
	require.NotNil(t, decoded.Allocation)
	assert.Equal(t, []int{4, 5}, decoded.Allocation.UnitIDs)
	assert.Equal(t, "2026-01-09T12:00:00Z", decoded.PublishedAt)
	assert.Nil(t, decoded.Transfer)
}
