package redis

import (
	"fmt"
	"strconv"
	"time"
)

// DefaultPrefix is the key prefix. The braces form a cluster hash tag so
// every key a script touches lives in one slot.
const DefaultPrefix = "{jobstore}:"

// Key layout under the prefix:
//
//	job:<id>                 hash, live record
//	scheduled:<queue>:<type> zset, waiting ids scored by scheduled_at ms
//	ready:<queue>:<type>     zset, due members "<enqueued_at>:<id>" scored by -priority
//	leased:<queue>           zset, leased ids scored by leased_at ms
//	jobs / jobs:<queue>      zset, members "<enqueued_at>:<id>" at score 0
//	queues                   set of queue names
//	dead:<id>                hash, dead-letter entry
//	dlq / dlq:<queue>        zset, members "<failed_at>:<id>" at score 0
type keys struct {
	prefix string
}

func (k keys) job(id string) string  { return k.prefix + "job:" + id }
func (k keys) dead(id string) string { return k.prefix + "dead:" + id }
func (k keys) jobIndex(queue string) string {
	if queue == "" {
		return k.prefix + "jobs"
	}
	return k.prefix + "jobs:" + queue
}
func (k keys) deadIndex(queue string) string {
	if queue == "" {
		return k.prefix + "dlq"
	}
	return k.prefix + "dlq:" + queue
}
func (k keys) leased(queue string) string { return k.prefix + "leased:" + queue }
func (k keys) queues() string             { return k.prefix + "queues" }

// stampWidth is the width of a zero-padded nanosecond timestamp. Fixed-width
// digits compare the same as strings and as numbers, which lets scripts
// fence leases exactly without float conversion.
const stampWidth = 20

func stamp(t time.Time) string {
	return fmt.Sprintf("%0*d", stampWidth, t.UnixNano())
}

func parseStamp(s string) (time.Time, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("jobstore/redis: parse timestamp %q: %w", s, err)
	}
	return time.Unix(0, n).UTC(), nil
}

func millis(t time.Time) float64 {
	return float64(t.UnixMilli())
}

// memberID returns the id part of an index member "<stamp>:<id>".
func memberID(member string) string {
	if len(member) <= stampWidth+1 {
		return ""
	}
	return member[stampWidth+1:]
}
