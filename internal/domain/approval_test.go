package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDecision(t *testing.T) {
	tests := []struct {
		token    string
		expected ApprovalStatus
		wantErr  bool
	}{
		{token: "approve", expected: StatusApproved},
		{token: "approved", expected: StatusApproved},
		{token: " APPROVE ", expected: StatusApproved},
		{token: "decline", expected: StatusDeclined},
		{token: "Declined", expected: StatusDeclined},
		{token: "pending", wantErr: true},
		{token: "forwarded", wantErr: true},
		{token: "reject", wantErr: true},
		{token: "", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.token, func(t *testing.T) {
			status, err := ParseDecision(tc.token)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidStatus)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, status)
		})
	}
}

func TestCanTransitionTo(t *testing.T) {
	tests := []struct {
		name    string
		current ApprovalStatus
		next    ApprovalStatus
		wantErr error
	}{
		{name: "pending to approved", current: StatusPending, next: StatusApproved},
		{name: "pending to declined", current: StatusPending, next: StatusDeclined},
		{name: "forwarded to approved", current: StatusForwarded, next: StatusApproved},
		{name: "approved is terminal", current: StatusApproved, next: StatusDeclined, wantErr: ErrAlreadyDecided},
		{name: "declined is terminal", current: StatusDeclined, next: StatusApproved, wantErr: ErrAlreadyDecided},
		{name: "back to pending", current: StatusPending, next: StatusPending, wantErr: ErrInvalidStatus},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := &ApprovalRequest{Status: tc.current}
			err := rec.CanTransitionTo(tc.next)
			if tc.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}

	t.Run("already decided carries winner status", func(t *testing.T) {
		rec := &ApprovalRequest{Status: StatusApproved}
		var decided *AlreadyDecidedError
		require.True(t, errors.As(rec.CanTransitionTo(StatusDeclined), &decided))
		assert.Equal(t, StatusApproved, decided.Status)
	})
}

func TestSubmissionValidate(t *testing.T) {
	valid := Submission{RequestorName: "Alice Lee", SystemName: "Finance", RequestType: "Access", Reason: "Quarterly audit"}
	assert.NoError(t, valid.Validate())

	missing := valid
	missing.Reason = "   "
	missing.SystemName = ""
	err := missing.Validate()
	require.ErrorIs(t, err, ErrValidation)

	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, []string{"systemName", "reason"}, vErr.Fields)
}

func TestNewApprovalRequest(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	rec := NewApprovalRequest("id-1", Submission{
		RequestorName: " Alice Lee ", SystemName: "Finance", RequestType: "Access", Reason: "Quarterly audit",
	}, now)
	assert.Equal(t, StatusPending, rec.Status)
	assert.Equal(t, "Alice Lee", rec.RequestorName)
	assert.Equal(t, DefaultSourceSystem, rec.SourceSystem)
	assert.Equal(t, now, rec.RequestedAt)
	assert.Nil(t, rec.ActorName)
	assert.Nil(t, rec.ExternalMessageID)

	explicit := now.Add(-48 * time.Hour)
	rec = NewApprovalRequest("id-2", Submission{
		RequestorName: "Alice Lee", SystemName: "Finance", RequestType: "Access", Reason: "Quarterly audit",
		RequestedAt: &explicit, SourceSystem: "teams",
	}, now)
	assert.Equal(t, explicit, rec.RequestedAt)
	assert.Equal(t, "teams", rec.SourceSystem)
}

func TestResolveActor(t *testing.T) {
	assert.Equal(t, "Bob", ResolveActor(" Bob "))
	assert.Equal(t, DefaultActor, ResolveActor(""))
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("APPROVED")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, s)

	s, err = ParseStatus("")
	require.NoError(t, err)
	assert.Equal(t, ApprovalStatus(""), s)

	_, err = ParseStatus("archived")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}
