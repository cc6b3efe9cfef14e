package domain

import "errors"

var (
	// ErrInvalidInput is returned for empty or whitespace-only queries and malformed values
	ErrInvalidInput = errors.New("invalid input")

	// ErrLookupFailed is returned when the Candidate Source or Recognition service fails
	ErrLookupFailed = errors.New("lookup failed")

	// ErrNotFound is returned when the Candidate Source has no entry for a name
	ErrNotFound = errors.New("catalog entry not found")

	// ErrAlreadyPresent signals a duplicate add; informational, not a failure
	ErrAlreadyPresent = errors.New("entry already present")

	// ErrIndexOutOfRange is returned for an invalid comparison table index
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrStaleResultDiscarded marks a lookup result that lost the last-request-wins race.
	// It is only ever logged.
	ErrStaleResultDiscarded = errors.New("stale result discarded")

	// ErrItemNotFound is returned when a pending item id is unknown or already resolved
	ErrItemNotFound = errors.New("pending item not found")

	// ErrSessionNotFound is returned when a session id is unknown or expired
	ErrSessionNotFound = errors.New("session not found")

	// ErrUnknownPlanTier is returned for tiers other than normal, premium, subscription
	ErrUnknownPlanTier = errors.New("unknown plan tier")

	// ErrCacheMiss is returned when data is not found in cache
	ErrCacheMiss = errors.New("cache miss")
)
