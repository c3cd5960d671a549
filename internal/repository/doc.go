// Package repository defines the data access interfaces for surveys and
// estimation runs.
//
// The actual implementation is in the sqlite subpackage. It stores
// observations row by row so that a survey can be re-read exactly in input
// order, which keeps re-estimation deterministic, and stores each run's
// estimate table with absent values as SQL NULL.
//
// The sqlite repository creates its schema on startup and is tested with
// in-memory databases.
package repository
