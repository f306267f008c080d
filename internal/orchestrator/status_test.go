package orchestrator

import (
	"errors"
	"sync"
	"testing"

	"docbulk/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTransitions(t *testing.T) {
	status := NewStatus()

	a := status.AddPending("/a.json")
	b := status.AddPending("/b.json")
	c := status.AddPending("/c.json")

	assert.Equal(t, 3, status.Total())
	assert.Equal(t, 3, status.Pending())

	require.NoError(t, status.MarkSuccessful(a))
	require.NoError(t, status.MarkFailed(c, errTransport))

	assert.Equal(t, 1, status.Pending())
	assert.Equal(t, 1, status.Successful())
	assert.Equal(t, 1, status.Failed())
	assert.Equal(t, 2, status.Completed())

	assert.Equal(t, []string{"/b.json"}, status.PendingURIs())
	assert.Equal(t, []string{"/a.json"}, status.SuccessfulURIs())
	assert.Equal(t, []string{"/c.json"}, status.FailedURIs())

	record, ok := status.Record(c)
	require.True(t, ok)
	assert.Equal(t, model.OutcomeFailure, record.Status)
	assert.ErrorIs(t, record.Err, errTransport)

	record, ok = status.Record(b)
	require.True(t, ok)
	assert.Equal(t, model.OutcomePending, record.Status)

	_, ok = status.Record(99)
	assert.False(t, ok)
}

func TestStatusRejectsTerminalRemark(t *testing.T) {
	status := NewStatus()
	id := status.AddPending("/done.json")
	require.NoError(t, status.MarkSuccessful(id))

	assert.ErrorIs(t, status.MarkFailed(id, errTransport), ErrTerminalOutcome)
	assert.ErrorIs(t, status.MarkSuccessful(id), ErrTerminalOutcome)
	assert.ErrorIs(t, status.MarkSuccessful(7), ErrUnknownItem)
	assert.ErrorIs(t, status.MarkFailed(-1, errTransport), ErrUnknownItem)

	assert.Equal(t, 1, status.Successful())
	assert.Equal(t, 0, status.Failed())
	assert.Equal(t, 0, status.Pending())
}

func TestStatusSnapshotsAreStable(t *testing.T) {
	status := NewStatus()
	for _, uri := range makeURIs("stable", 4) {
		status.AddPending(uri)
	}
	require.NoError(t, status.MarkSuccessful(1))
	require.NoError(t, status.MarkFailed(2, errTransport))

	assert.Equal(t, status.Report(), status.Report())
	assert.Equal(t, status.Records(), status.Records())
	assert.Equal(t, status.Metrics(), status.Metrics())
}

func TestStatusRecordMapLastWins(t *testing.T) {
	status := NewStatus()
	first := status.AddPending("/dup.json")
	second := status.AddPending("/dup.json")
	status.AddPending("")

	require.NoError(t, status.MarkFailed(first, errTransport))
	require.NoError(t, status.MarkSuccessful(second))

	records := status.RecordMap()
	require.Len(t, records, 2)
	assert.Equal(t, second, records["/dup.json"].ID)
	assert.Equal(t, model.OutcomeSuccess, records["/dup.json"].Status)
	assert.Equal(t, model.OutcomePending, records[""].Status)
	assert.Equal(t, 3, status.Total())
}

func TestStatusConcurrentMarks(t *testing.T) {
	status := NewStatus()
	ids := make([]int, 1000)
	for i := range ids {
		ids[i] = status.AddPending("")
	}

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%3 == 0 {
				_ = status.MarkFailed(id, errTransport)
				return
			}
			_ = status.MarkSuccessful(id)
		}()
	}
	wg.Wait()

	report := status.Report()
	assert.Equal(t, 334, report.Failed)
	assert.Equal(t, 666, report.Successful)
	assert.Zero(t, report.Pending)
	assertInvariants(t, report)
}

func TestReportErrAggregatesDistinctCauses(t *testing.T) {
	status := NewStatus()
	timeout := errors.New("timeout")
	for i := range 4 {
		id := status.AddPending("")
		cause := errTransport
		if i%2 == 1 {
			cause = timeout
		}
		require.NoError(t, status.MarkFailed(id, cause))
	}

	report := status.Report()
	err := report.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, errTransport)
	assert.ErrorIs(t, err, timeout)
	assert.Equal(t, []string{errTransport.Error(), timeout.Error()}, report.ErrorMessages())

	assert.NoError(t, NewStatus().Report().Err())
}

func TestStatusTracksDuplicateURIsSeparately(t *testing.T) {
	status := NewStatus()

	first := status.AddPending("/dup.json")
	second := status.AddPending("/dup.json")
	require.NoError(t, status.MarkSuccessful(first))

	report := status.Report()
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, []string{"/dup.json"}, report.PendingURIs)
	assert.Equal(t, []string{"/dup.json"}, report.SuccessfulURIs)

	record, ok := status.Record(second)
	require.True(t, ok)
	assert.Equal(t, model.OutcomePending, record.Status)
	assert.Equal(t, model.OutcomePending, status.RecordMap()["/dup.json"].Status)
}
