package infrastructure

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"review-workflow/domain"
)

func sampleEvent() domain.WorkflowEvent {
	return domain.WorkflowEvent{
		ID:           "evt-1",
		AssignmentID: "a-1",
		EmployeeID:   "emp-1",
		Operation:    domain.OpReopen,
		FromState:    domain.StateFinalized,
		ToState:      domain.StateInReview,
		ActorID:      "hr-1",
		Reason:       "typo in rating",
		OccurredAt:   time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestDecodeEvent(t *testing.T) {
	body, err := json.Marshal(sampleEvent())
	require.NoError(t, err)

	e, err := DecodeEvent(body)
	require.NoError(t, err)
	assert.Equal(t, sampleEvent(), e)

	_, err = DecodeEvent([]byte(`{"id":"x"}`))
	assert.Error(t, err)
	_, err = DecodeEvent([]byte(`not json`))
	assert.Error(t, err)
}

func TestLogPublisher(t *testing.T) {
	logger, hook := test.NewNullLogger()
	require.NoError(t, NewLogPublisher(logger).Publish(context.Background(), sampleEvent()))

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, "workflow event", entry.Message)
	assert.Equal(t, "a-1", entry.Data["assignment_id"])
	assert.Equal(t, domain.StateFinalized, entry.Data["from"])
	assert.Equal(t, "typo in rating", entry.Data["reason"])
}

func TestEventFields_OmitsEmpty(t *testing.T) {
	e := sampleEvent()
	e.FromState, e.ActorID, e.Reason = "", "", ""
	f := EventFields(e)
	assert.NotContains(t, f, "from")
	assert.NotContains(t, f, "actor")
	assert.NotContains(t, f, "reason")
	assert.Equal(t, domain.StateInReview, f["to"])
}
