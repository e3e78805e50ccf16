package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPayload(t *testing.T) {
	actor := "Bob"
	lastErr := "webhook returned 500"
	created := time.Date(2026, 3, 1, 12, 30, 0, 0, time.FixedZone("MSK", 3*3600))

	rec := &ApprovalRequest{
		ID:            "req-1",
		RequestorName: "Alice Lee",
		SystemName:    "Finance",
		RequestType:   "Access",
		Reason:        "Quarterly audit",
		Status:        StatusApproved,
		ActorName:     &actor,
		LastError:     &lastErr,
		CreatedAt:     created,
	}
	before := *rec

	p := BuildPayload(rec)

	assert.Equal(t, WebhookPayload{
		ID:            "req-1",
		RequestorName: "Alice Lee",
		SystemName:    "Finance",
		RequestType:   "Access",
		Reason:        "Quarterly audit",
		RequestedAt:   "2026-03-01T09:30:00Z", // RequestedAt пуст, берем CreatedAt в UTC
		SourceSystem:  DefaultSourceSystem,
	}, p)
	assert.Equal(t, before, *rec, "builder must not mutate the record")

	raw, err := json.Marshal(p)
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.NotContains(t, fields, "actorName")
	assert.NotContains(t, fields, "lastError")
	assert.NotContains(t, fields, "status")
}

func TestBuildPayloadUsesRequestedAt(t *testing.T) {
	rec := &ApprovalRequest{
		ID:           "req-2",
		RequestedAt:  time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC),
		CreatedAt:    time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
		SourceSystem: "teams",
	}
	p := BuildPayload(rec)
	assert.Equal(t, "2025-12-31T23:59:59Z", p.RequestedAt)
	assert.Equal(t, "teams", p.SourceSystem)
}
