package service

import "errors"

var (
	// ErrFlowNotFound is returned when a flow lookup misses.
	ErrFlowNotFound = errors.New("approval flow not found")

	// ErrNodeNotFound is returned when a node lookup misses, including node
	// IDs referenced by an update payload that belong to a different flow.
	ErrNodeNotFound = errors.New("approval node not found")

	// ErrRecordNotFound is returned when a record lookup misses.
	ErrRecordNotFound = errors.New("approval record not found")

	// ErrAlreadyDecided is returned when a decision is attempted on a record
	// that is no longer pending. Duplicate and concurrent decisions surface
	// this as a conflict; exactly one caller wins the transition.
	ErrAlreadyDecided = errors.New("approval record already decided")

	// ErrPendingRecordExists is returned when a pending record would be
	// created for a submission that already has one. The routing engine never
	// attempts this under correct sequencing, so hitting it indicates a bug.
	ErrPendingRecordExists = errors.New("submission already has a pending approval record")

	// ErrFlowConflict is returned when enabling a flow would leave more than
	// one enabled flow attached to the same form.
	ErrFlowConflict = errors.New("form already has an enabled approval flow")
)
