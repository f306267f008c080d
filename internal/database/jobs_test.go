package database

import (
	"context"
	"testing"
	"time"

	"docbulk/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func newMockDB(mt *mtest.T) *mongoDB {
	return &mongoDB{
		client:  mt.Client,
		db:      mt.DB,
		jobsCol: mt.Coll,
	}
}

func namespace(mt *mtest.T) string {
	return mt.DB.Name() + "." + mt.Coll.Name()
}

func TestCreateJob(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("assigns id and timestamps", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		job := &model.Job{Type: model.RequestLoad, Status: model.StatusQueued}
		require.NoError(mt, newMockDB(mt).CreateJob(context.Background(), job))

		assert.False(mt, job.ID.IsZero())
		assert.False(mt, job.CreatedAt.IsZero())
		assert.Equal(mt, []string{}, job.ErrorList)
	})
}

func TestGetJobByID(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("found", func(mt *mtest.T) {
		id := primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateCursorResponse(1, namespace(mt), mtest.FirstBatch, bson.D{
			{Key: "_id", Value: id},
			{Key: "type", Value: model.RequestExport},
			{Key: "status", Value: model.StatusProcessing},
			{Key: "metrics", Value: bson.D{{Key: "total_items", Value: 10}, {Key: "success_count", Value: 4}}},
		}))

		job, err := newMockDB(mt).GetJobByID(context.Background(), id.Hex())
		require.NoError(mt, err)
		assert.Equal(mt, id, job.ID)
		assert.Equal(mt, model.RequestExport, job.Type)
		assert.Equal(mt, model.StatusProcessing, job.Status)
		assert.Equal(mt, 10, job.Metrics.TotalItems)
		assert.Equal(mt, 4, job.Metrics.SuccessCount)
	})

	mt.Run("missing", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(mt), mtest.FirstBatch))

		_, err := newMockDB(mt).GetJobByID(context.Background(), primitive.NewObjectID().Hex())
		assert.ErrorIs(mt, err, ErrJobNotFound)
	})

	mt.Run("invalid id", func(mt *mtest.T) {
		_, err := newMockDB(mt).GetJobByID(context.Background(), "not-an-object-id")
		assert.ErrorIs(mt, err, ErrJobNotFound)
	})
}

func TestListJobs(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("decodes every batch", func(mt *mtest.T) {
		first := mtest.CreateCursorResponse(1, namespace(mt), mtest.FirstBatch,
			bson.D{{Key: "_id", Value: primitive.NewObjectID()}, {Key: "type", Value: model.RequestDelete}})
		second := mtest.CreateCursorResponse(0, namespace(mt), mtest.NextBatch,
			bson.D{{Key: "_id", Value: primitive.NewObjectID()}, {Key: "type", Value: model.RequestDelete}})
		mt.AddMockResponses(first, second)

		jobs, err := newMockDB(mt).ListJobs(context.Background(), JobFilter{Type: model.RequestDelete}, 10, 0)
		require.NoError(mt, err)
		assert.Len(mt, jobs, 2)
	})
}

func TestUpdateProgress(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("matched", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		err := newMockDB(mt).UpdateProgress(context.Background(), primitive.NewObjectID().Hex(), model.JobMetrics{TotalItems: 3})
		assert.NoError(mt, err)
	})

	mt.Run("not matched", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0},
			bson.E{Key: "nModified", Value: 0},
		))

		err := newMockDB(mt).UpdateProgress(context.Background(), primitive.NewObjectID().Hex(), model.JobMetrics{})
		assert.ErrorIs(mt, err, ErrJobNotFound)
	})
}

func TestCompleteJob(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("stores outcome", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		failed := make([]string, maxStoredFailures+5)
		err := newMockDB(mt).CompleteJob(context.Background(), primitive.NewObjectID().Hex(),
			model.StatusCompleted, model.JobMetrics{TotalItems: len(failed), FailureCount: len(failed)},
			failed, []string{"connection refused"})
		require.NoError(mt, err)

		started := mt.GetStartedEvent()
		require.NotNil(mt, started)
		assert.Equal(mt, "update", started.CommandName)
	})
}

func TestUpdateJobStatusWithError(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("pushes error", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		start := time.Now()
		err := newMockDB(mt).UpdateJobStatus(context.Background(), primitive.NewObjectID().Hex(), model.StatusFailed, "no input")
		require.NoError(mt, err)
		assert.WithinDuration(mt, start, time.Now(), time.Second)
	})
}
