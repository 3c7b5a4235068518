package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/jobstore"
	"github.com/xraph/jobstore/id"
	"github.com/xraph/jobstore/job"
)

// InsertJob persists a new waiting record.
func (s *Store) InsertJob(ctx context.Context, r *job.Record) error {
	if _, err := s.jobs.InsertOne(ctx, toJobModel(r)); err != nil {
		if mongod.IsDuplicateKeyError(err) {
			return jobstore.ErrJobAlreadyExists
		}
		return unavailable("insert job", err)
	}
	return nil
}

// ClaimJob leases the best eligible record with a single findOneAndUpdate.
// The server applies the filter, the sort and the update as one atomic
// document operation, so two callers can never lease the same record.
func (s *Store) ClaimJob(ctx context.Context, p job.ClaimParams) (*job.Record, error) {
	filter := bson.M{
		"queue":        p.Queue,
		"job_type":     bson.M{"$in": p.Types},
		"leased_at":    nil,
		"scheduled_at": bson.M{"$lte": p.Now},
	}
	update := bson.M{
		"$set": bson.M{"leased_at": p.Now},
		"$inc": bson.M{"retry_count": 1},
	}
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetSort(bson.D{
			{Key: "priority", Value: -1},
			{Key: "enqueued_at", Value: 1},
			{Key: "_id", Value: 1},
		})

	var m jobModel
	if err := s.jobs.FindOneAndUpdate(ctx, filter, update, opts).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return nil, nil
		}
		return nil, unavailable("claim job", err)
	}
	return fromJobModel(&m)
}

// CompleteJob deletes a leased record.
func (s *Store) CompleteJob(ctx context.Context, jobID id.JobID, leasedAt time.Time) error {
	res, err := s.jobs.DeleteOne(ctx, leaseFilter(jobID, leasedAt))
	if err != nil {
		return unavailable("complete job", err)
	}
	if res.DeletedCount == 0 {
		return jobstore.ErrLeaseLost
	}
	return nil
}

// ReleaseJob returns a leased record to the waiting state.
func (s *Store) ReleaseJob(ctx context.Context, jobID id.JobID, leasedAt time.Time) error {
	res, err := s.jobs.UpdateOne(ctx, leaseFilter(jobID, leasedAt),
		bson.M{"$set": bson.M{"leased_at": nil}},
	)
	if err != nil {
		return unavailable("release job", err)
	}
	if res.MatchedCount == 0 {
		return jobstore.ErrLeaseLost
	}
	return nil
}

// CancelJob deletes a waiting record.
func (s *Store) CancelJob(ctx context.Context, jobID id.JobID) error {
	res, err := s.jobs.DeleteOne(ctx, bson.M{"_id": jobID.String(), "leased_at": nil})
	if err != nil {
		return unavailable("cancel job", err)
	}
	if res.DeletedCount == 0 {
		return jobstore.ErrJobNotFound
	}
	return nil
}

// UnscheduleJob deletes a waiting record of the given type and returns it.
func (s *Store) UnscheduleJob(ctx context.Context, jobID id.JobID, jobType string) (*job.Record, error) {
	var m jobModel
	err := s.jobs.FindOneAndDelete(ctx, bson.M{
		"_id":       jobID.String(),
		"job_type":  jobType,
		"leased_at": nil,
	}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, jobstore.ErrJobNotFound
		}
		return nil, unavailable("unschedule job", err)
	}
	return fromJobModel(&m)
}

// GetJob retrieves a record by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Record, error) {
	var m jobModel
	if err := s.jobs.FindOne(ctx, bson.M{"_id": jobID.String()}).Decode(&m); err != nil {
		if isNoDocuments(err) {
			return nil, jobstore.ErrJobNotFound
		}
		return nil, unavailable("get job", err)
	}
	return fromJobModel(&m)
}

func jobFilter(queue string, state job.State) bson.M {
	filter := bson.M{}
	if queue != "" {
		filter["queue"] = queue
	}
	switch state {
	case job.StateWaiting:
		filter["leased_at"] = nil
	case job.StateLeased:
		filter["leased_at"] = bson.M{"$ne": nil}
	}
	return filter
}

// ListJobs returns records ordered by enqueue time, then ID.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Record, error) {
	findOpts := options.Find().SetSort(bson.D{
		{Key: "enqueued_at", Value: 1},
		{Key: "_id", Value: 1},
	})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}

	cursor, err := s.jobs.Find(ctx, jobFilter(opts.Queue, opts.State), findOpts)
	if err != nil {
		return nil, unavailable("list jobs", err)
	}
	defer cursor.Close(ctx)

	var models []jobModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, unavailable("list jobs decode", err)
	}

	out := make([]*job.Record, 0, len(models))
	for i := range models {
		r, err := fromJobModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// CountJobs returns the number of records matching opts.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	n, err := s.jobs.CountDocuments(ctx, jobFilter(opts.Queue, opts.State))
	if err != nil {
		return 0, unavailable("count jobs", err)
	}
	return n, nil
}

// ReleaseExpiredLeases returns records leased before leasedBefore to the
// waiting state.
func (s *Store) ReleaseExpiredLeases(ctx context.Context, queue string, leasedBefore time.Time) (int64, error) {
	res, err := s.jobs.UpdateMany(ctx,
		bson.M{
			"queue":     queue,
			"leased_at": bson.M{"$ne": nil, "$lt": leasedBefore},
		},
		bson.M{"$set": bson.M{"leased_at": nil}},
	)
	if err != nil {
		return 0, unavailable("release expired leases", err)
	}
	return res.ModifiedCount, nil
}
