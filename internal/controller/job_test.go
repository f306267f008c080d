package controller

import (
	"context"
	"errors"
	"testing"
	"time"

	"docbulk/internal/database"
	"docbulk/internal/model"
	"docbulk/internal/rabbitmq"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestController(db *fakeJobDB, queue *fakeQueue, store *fakeStore) *jobController {
	return NewJobController(db, queue, newTestRunner(store)).(*jobController)
}

func delivery(ack *fakeAcknowledger, body string) amqp.Delivery {
	return amqp.Delivery{Acknowledger: ack, Body: []byte(body)}
}

func TestCreateJob(t *testing.T) {
	db := newFakeJobDB()
	queue := &fakeQueue{}
	c := newTestController(db, queue, &fakeStore{})

	job, err := c.CreateJob(context.Background(), model.JobRequest{Kind: model.RequestDelete, URIs: []string{"/a"}})
	require.NoError(t, err)

	assert.Equal(t, model.StatusQueued, job.Status)
	assert.Equal(t, model.RequestDelete, job.Type)
	require.Len(t, queue.published, 1)
	assert.Equal(t, rabbitmq.JobMessage{JobID: job.ID.Hex(), Kind: model.RequestDelete}, queue.published[0])

	stored, err := c.GetJob(context.Background(), job.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, []string{"/a"}, stored.Request.URIs)
}

func TestCreateJobRejectsInvalidRequest(t *testing.T) {
	db := newFakeJobDB()
	queue := &fakeQueue{}
	c := newTestController(db, queue, &fakeStore{})

	_, err := c.CreateJob(context.Background(), model.JobRequest{Kind: "reindex"})
	assert.ErrorIs(t, err, ErrUnknownKind)
	assert.Empty(t, db.jobs)
	assert.Empty(t, queue.published)
}

func TestCreateJobPublishFailure(t *testing.T) {
	db := newFakeJobDB()
	queue := &fakeQueue{publishErr: errors.New("channel closed")}
	c := newTestController(db, queue, &fakeStore{})

	job, err := c.CreateJob(context.Background(), model.JobRequest{Kind: model.RequestDelete, URIs: []string{"/a"}})
	require.Error(t, err)
	require.NotNil(t, job)
	assert.Equal(t, model.StatusFailed, job.Status)

	require.Len(t, db.updates, 1)
	assert.Equal(t, model.StatusFailed, db.updates[0].status)
	assert.Equal(t, "channel closed", db.updates[0].errMsg)
}

func TestGetAvailableJobTypes(t *testing.T) {
	c := newTestController(newFakeJobDB(), &fakeQueue{}, &fakeStore{})

	types := c.GetAvailableJobTypes()
	assert.Len(t, types, 3)
	assert.Contains(t, types, model.RequestLoad)
	assert.Contains(t, types, model.RequestExport)
	assert.Contains(t, types, model.RequestDelete)
}

func TestListJobsFiltersByType(t *testing.T) {
	db := newFakeJobDB()
	c := newTestController(db, &fakeQueue{}, &fakeStore{})

	_, err := c.CreateJob(context.Background(), model.JobRequest{Kind: model.RequestDelete, URIs: []string{"/a"}})
	require.NoError(t, err)
	_, err = c.CreateJob(context.Background(), model.JobRequest{Kind: model.RequestLoad, Path: "/data"})
	require.NoError(t, err)

	jobs, err := c.ListJobs(context.Background(), database.JobFilter{Type: model.RequestLoad}, 20, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, model.RequestLoad, jobs[0].Type)
}

func TestProcessDeliveryRunsJob(t *testing.T) {
	db := newFakeJobDB()
	queue := &fakeQueue{}
	store := &fakeStore{}
	c := newTestController(db, queue, store)

	job, err := c.CreateJob(context.Background(), model.JobRequest{Kind: model.RequestDelete, URIs: []string{"/a", "/b", "/c"}})
	require.NoError(t, err)

	ack := &fakeAcknowledger{}
	c.processDelivery(context.Background(), delivery(ack, `{"job_id":"`+job.ID.Hex()+`","kind":"delete"}`))

	acks, nacks := ack.counts()
	assert.Equal(t, 1, acks)
	assert.Zero(t, nacks)
	assert.ElementsMatch(t, []string{"/a", "/b", "/c"}, store.deleted)

	require.Len(t, db.updates, 1)
	assert.Equal(t, model.StatusProcessing, db.updates[0].status)

	completions := db.completed()
	require.Len(t, completions, 1)
	assert.Equal(t, model.StatusCompleted, completions[0].status)
	assert.Equal(t, 3, completions[0].metrics.SuccessCount)
	assert.Empty(t, completions[0].failedURIs)
}

func TestProcessDeliveryRecordsFailures(t *testing.T) {
	db := newFakeJobDB()
	store := &fakeStore{fail: errors.New("connection refused")}
	c := newTestController(db, &fakeQueue{}, store)

	job, err := c.CreateJob(context.Background(), model.JobRequest{Kind: model.RequestDelete, URIs: []string{"/a"}})
	require.NoError(t, err)

	c.processDelivery(context.Background(), delivery(&fakeAcknowledger{}, `{"job_id":"`+job.ID.Hex()+`"}`))

	completions := db.completed()
	require.Len(t, completions, 1)
	assert.Equal(t, model.StatusFailed, completions[0].status)
	assert.Equal(t, []string{"/a"}, completions[0].failedURIs)
	assert.Equal(t, []string{"connection refused"}, completions[0].errorList)
}

func TestProcessDeliveryRunError(t *testing.T) {
	db := newFakeJobDB()
	c := newTestController(db, &fakeQueue{}, &fakeStore{})

	job, err := c.CreateJob(context.Background(), model.JobRequest{Kind: model.RequestLoad, S3Prefix: "in/"})
	require.NoError(t, err)

	ack := &fakeAcknowledger{}
	c.processDelivery(context.Background(), delivery(ack, `{"job_id":"`+job.ID.Hex()+`"}`))

	acks, _ := ack.counts()
	assert.Equal(t, 1, acks)
	assert.Empty(t, db.completed())

	require.Len(t, db.updates, 2)
	assert.Equal(t, model.StatusFailed, db.updates[1].status)
	assert.Equal(t, ErrNoStorage.Error(), db.updates[1].errMsg)
}

func TestProcessDeliveryMalformed(t *testing.T) {
	c := newTestController(newFakeJobDB(), &fakeQueue{}, &fakeStore{})

	ack := &fakeAcknowledger{}
	c.processDelivery(context.Background(), delivery(ack, `{"kind":"delete"}`))

	acks, nacks := ack.counts()
	assert.Zero(t, acks)
	assert.Equal(t, 1, nacks)
	assert.Equal(t, []bool{false}, ack.requeue)
}

func TestProcessDeliveryUnknownJob(t *testing.T) {
	c := newTestController(newFakeJobDB(), &fakeQueue{}, &fakeStore{})

	ack := &fakeAcknowledger{}
	c.processDelivery(context.Background(), delivery(ack, `{"job_id":"65f1c0a1b2c3d4e5f6a7b8c9"}`))

	assert.Equal(t, []bool{false}, ack.requeue)
}

func TestProcessDeliverySkipsFinishedJob(t *testing.T) {
	db := newFakeJobDB()
	store := &fakeStore{}
	c := newTestController(db, &fakeQueue{}, store)

	job, err := c.CreateJob(context.Background(), model.JobRequest{Kind: model.RequestDelete, URIs: []string{"/a"}})
	require.NoError(t, err)
	require.NoError(t, db.UpdateJobStatus(context.Background(), job.ID.Hex(), model.StatusCompleted, ""))

	ack := &fakeAcknowledger{}
	c.processDelivery(context.Background(), delivery(ack, `{"job_id":"`+job.ID.Hex()+`"}`))

	acks, _ := ack.counts()
	assert.Equal(t, 1, acks)
	assert.Zero(t, store.calls)
}

func TestProcessJobsConsumesUntilStopped(t *testing.T) {
	db := newFakeJobDB()
	queue := &fakeQueue{deliveries: make(chan amqp.Delivery, 1)}
	store := &fakeStore{}
	c := newTestController(db, queue, store)

	job, err := c.CreateJob(context.Background(), model.JobRequest{Kind: model.RequestDelete, URIs: []string{"/a"}})
	require.NoError(t, err)

	require.NoError(t, c.ProcessJobs(context.Background()))

	ack := &fakeAcknowledger{}
	queue.deliveries <- delivery(ack, `{"job_id":"`+job.ID.Hex()+`"}`)

	require.Eventually(t, func() bool {
		acks, _ := ack.counts()
		return acks == 1
	}, 2*time.Second, 10*time.Millisecond)

	c.StopProcessing()
	assert.Len(t, db.completed(), 1)
}
