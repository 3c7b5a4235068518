// Package mongo implements store.Store on MongoDB with the official v2
// driver. Jobs live in the jobstore_jobs collection and dead-lettered jobs
// in jobstore_dead_jobs, both keyed by the job ID in _id.
//
// The caller owns the client. Dead-lettering uses transactions, so connect
// to a replica set:
//
//	client, _ := mongo.Connect(options.Client().ApplyURI("mongodb://localhost:27017/?replicaSet=rs0"))
//	s := jobmongo.New(client.Database("app"))
//	if err := s.Migrate(ctx); err != nil {
//	    return err
//	}
package mongo
