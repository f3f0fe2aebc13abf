// Package voxerr defines the error kinds shared by the voxel packages.
// Errors are wrapped with fmt.Errorf("...: %w", kind) and tested with errors.Is.
package voxerr

import "errors"

var (
	ErrConfigurationInvalid = errors.New("configuration invalid")
	ErrCapacityExceeded     = errors.New("capacity exceeded")
	ErrNotFound             = errors.New("not found")
	ErrIO                   = errors.New("io failure")
)
