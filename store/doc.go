// Package store opens the persistence.Store backend named in configuration.
// Backends: Redis ([github.com/xraph/jobs/store/redis]) for durable
// deployments and Memory ([github.com/xraph/jobs/store/memory]) for tests,
// development and single-process use.
package store
