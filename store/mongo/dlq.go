package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/jobstore"
	"github.com/xraph/jobstore/dlq"
	"github.com/xraph/jobstore/id"
	"github.com/xraph/jobstore/job"
)

// DeadLetterJob moves a leased record into the dead-letter collection.
func (s *Store) DeadLetterJob(ctx context.Context, jobID id.JobID, leasedAt time.Time, reason string, failedAt time.Time) error {
	return s.transact(ctx, "dead letter", func(ctx context.Context) error {
		var m jobModel
		if err := s.jobs.FindOneAndDelete(ctx, leaseFilter(jobID, leasedAt)).Decode(&m); err != nil {
			if isNoDocuments(err) {
				return jobstore.ErrLeaseLost
			}
			return err
		}
		r, err := fromJobModel(&m)
		if err != nil {
			return err
		}
		if _, err := s.dead.InsertOne(ctx, toDeadModel(dlq.NewEntry(r, reason, failedAt))); err != nil {
			if mongod.IsDuplicateKeyError(err) {
				return jobstore.ErrJobAlreadyExists
			}
			return err
		}
		return nil
	})
}

// RequeueDLQ moves an entry back to the live collection as a waiting record.
func (s *Store) RequeueDLQ(ctx context.Context, jobID id.JobID, scheduledAt time.Time) (*job.Record, error) {
	var out *job.Record
	err := s.transact(ctx, "requeue", func(ctx context.Context) error {
		var m deadModel
		if err := s.dead.FindOneAndDelete(ctx, bson.M{"_id": jobID.String()}).Decode(&m); err != nil {
			if isNoDocuments(err) {
				return jobstore.ErrDLQNotFound
			}
			return err
		}
		e, err := fromDeadModel(&m)
		if err != nil {
			return err
		}
		r := e.Requeued(scheduledAt)
		if _, err := s.jobs.InsertOne(ctx, toJobModel(r)); err != nil {
			if mongod.IsDuplicateKeyError(err) {
				return jobstore.ErrJobAlreadyExists
			}
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetDLQ retrieves an entry by job ID.
func (s *Store) GetDLQ(ctx context.Context, jobID id.JobID) (*dlq.Entry, error) {
	var m deadModel
	if err := s.dead.FindOne(ctx, bson.M{"_id": jobID.String()}).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return nil, jobstore.ErrDLQNotFound
		}
		return nil, unavailable("get dlq", err)
	}
	return fromDeadModel(&m)
}

// ListDLQ returns entries, most recently failed first.
func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	filter := bson.M{}
	if opts.Queue != "" {
		filter["queue"] = opts.Queue
	}

	findOpts := options.Find().SetSort(bson.D{
		{Key: "failed_at", Value: -1},
		{Key: "_id", Value: -1},
	})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}

	cursor, err := s.dead.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, unavailable("list dlq", err)
	}
	defer cursor.Close(ctx)

	var models []deadModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, unavailable("list dlq decode", err)
	}

	out := make([]*dlq.Entry, 0, len(models))
	for i := range models {
		e, err := fromDeadModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// CountDLQ returns the number of entries in queue, or in all queues.
func (s *Store) CountDLQ(ctx context.Context, queue string) (int64, error) {
	filter := bson.M{}
	if queue != "" {
		filter["queue"] = queue
	}
	n, err := s.dead.CountDocuments(ctx, filter)
	if err != nil {
		return 0, unavailable("count dlq", err)
	}
	return n, nil
}

// PurgeDLQ removes entries that failed before the given time.
func (s *Store) PurgeDLQ(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.dead.DeleteMany(ctx, bson.M{"failed_at": bson.M{"$lt": before}})
	if err != nil {
		return 0, unavailable("purge dlq", err)
	}
	return res.DeletedCount, nil
}
