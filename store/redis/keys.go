package redis

import "github.com/xraph/jobs/persistence"

const defaultPrefix = "jobs:"

type keys struct {
	prefix string
}

// job returns the hash key of a job record: {prefix}job:{id}
func (k keys) job(id string) string { return k.prefix + "job:" + id }

// deadLetter returns the hash key of a dead letter: {prefix}dlq:{id}
func (k keys) deadLetter(id string) string { return k.prefix + "dlq:" + id }

// list returns the key of an id list: {prefix}queue:{name}
func (k keys) list(l persistence.List) string { return k.prefix + "queue:" + string(l) }
