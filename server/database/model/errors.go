package dbmodel

import (
	"errors"
)

// An error indicating that the searched entry was not found.
var ErrNotExists = errors.New("database entry not found")

// An error returned when a prefix config carries a maximum lease
// lifetime lower than the valid lease lifetime.
var ErrInvalidLifetime = errors.New("maximum lifetime must be greater than or equal to valid lifetime")

// An error returned on an attempt to delete or demote a primary peer
// whose server still directly owns configuration.
var ErrPrimaryInUse = errors.New("the primary peer's server owns configuration; migrate it to a new primary first")

// An error returned on an attempt to assign the primary role to a peer
// while another peer of the same relationship already holds it.
var ErrDuplicatePrimary = errors.New("the relationship already has a primary peer")

// An error returned on an attempt to bind a server to a relationship it
// already belongs to.
var ErrDuplicateMembership = errors.New("the server is already a peer of the relationship")

// An error returned when a relationship has no primary peer while one
// is required for config resolution or synthesis.
var ErrMissingPrimary = errors.New("the relationship has no primary peer")

// An error returned when the server designated as the new primary is
// not a peer of the relationship.
var ErrNotAPeer = errors.New("the server is not a peer of the relationship")

// An error returned when the relationship's primary changed while a
// migration was in progress. The caller should retry.
var ErrConcurrentRoleChange = errors.New("the relationship's primary changed concurrently; retry the operation")
