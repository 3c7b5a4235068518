package jobstore

import "github.com/xraph/jobstore/id"

// ID is the primary identifier type for jobs and workers.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
