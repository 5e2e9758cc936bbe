package types

import "errors"

// Deep-copy errors. Every error returned by a copy wraps exactly one of
// these so callers can branch with errors.Is.
var (
	ErrInvalidState       = errors.New("invalid state")
	ErrUnknownRelation    = errors.New("unknown relation")
	ErrCyclicRelation     = errors.New("cyclic relation")
	ErrTypeMismatch       = errors.New("type mismatch")
	ErrPersistenceFailure = errors.New("persistence failure")
)

// Store errors.
var (
	ErrNotFound        = errors.New("record not found")
	ErrInvalidID       = errors.New("invalid record ID")
	ErrMalformedRecord = errors.New("malformed record")
)

// Schema and record errors.
var (
	ErrUnknownModel     = errors.New("unknown model")
	ErrUnknownField     = errors.New("unknown field")
	ErrInvalidModel     = errors.New("invalid model definition")
	ErrInvalidValueType = errors.New("invalid value type")
	ErrComputedField    = errors.New("field is computed")
	ErrDuplicateName    = errors.New("duplicate name")
)

// Backend lifecycle errors.
var (
	ErrBackendDetached = errors.New("backend is detached")
	ErrAlreadyAttached = errors.New("backend is already attached")
)
