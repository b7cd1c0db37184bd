// Package store persists tiered memory records. Two implementations share
// one interface: a Redis-backed store for deployments and an in-memory
// store for development and tests.
//
// Keys namespace memories as
// {prefix}{tier}:{session}:{framework}:{component}:{id} so several
// applications, sessions and components can share a single Redis instance
// without collisions.
package store
