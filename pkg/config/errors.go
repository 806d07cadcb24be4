package config

import "errors"

var (
	// ErrPersist indicates the record could not be written to storage.
	// The in-memory record still holds the attempted values.
	ErrPersist = errors.New("persist config")
	// ErrLayout indicates the stored blob does not decode as a record.
	ErrLayout = errors.New("config layout mismatch")
)
