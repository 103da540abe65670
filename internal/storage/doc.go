// Package storage opens and migrates the caseflow SQLite database and
// provides the retry and conversion helpers shared by the stores built
// on top of it.
package storage
