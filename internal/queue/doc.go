// Package queue persists the batch table of conversion jobs in SQLite.
//
// The Store manages the database connection, schema initialization, stats
// queries, and the wholesale table replacement the coordinator performs when
// a file fans out into derived jobs. Jobs carry their conversion artifacts,
// progress, and failure message so `lipidquant jobs list` can show the last
// batch without a running coordinator.
//
// The database is treated as transient storage for the current batch rather
// than a long-term archive. Schema changes bump the version in schema.go;
// users clear the database to adopt the new schema.
package queue
