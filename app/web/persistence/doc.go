// Package persistence provides storage of application records.
// The database is a single SQLite file (pure Go driver) opened in WAL mode. After every
// mutation the WAL is checkpointed back into the main file, so the file alone always holds
// the complete table image. Snapshot writes a consistent copy of the image to a separate
// file using a temp file and an atomic rename.
package persistence
