package match

import "errors"

var (
	// ErrProposalNotFound indicates the referenced proposal does not exist
	// (including proposals already consumed by accept or reject).
	ErrProposalNotFound = errors.New("match: proposal not found")
	// ErrMatchNotFound indicates no match record exists for the request.
	ErrMatchNotFound = errors.New("match: match not found")
	// ErrRequestNotFound indicates the request collaborator has no such
	// request.
	ErrRequestNotFound = errors.New("match: request not found")
	// ErrProviderNotFound indicates the provider directory has no such
	// provider.
	ErrProviderNotFound = errors.New("match: provider not found")
	// ErrProviderInactive indicates the provider exists but is not taking
	// work.
	ErrProviderInactive = errors.New("match: provider inactive")
	// ErrNotAuthorized indicates the caller is not the party the operation
	// requires.
	ErrNotAuthorized = errors.New("match: caller not authorized")
	// ErrProposalExpired indicates acceptance was attempted at or past the
	// proposal expiry.
	ErrProposalExpired = errors.New("match: proposal expired")
	// ErrReputationTooLow indicates the provider is below the configured
	// reputation minimum.
	ErrReputationTooLow = errors.New("match: reputation below minimum")
	// ErrTagOverlapTooLow indicates the provider's skills overlap the
	// request tags below the configured minimum.
	ErrTagOverlapTooLow = errors.New("match: tag overlap below minimum")
	// ErrInvalidProposedAmount guards the scoring formula; unreachable for
	// positive urgency and overlap.
	ErrInvalidProposedAmount = errors.New("match: proposed amount must be positive")
	// ErrRequestNotOpen indicates the request is not accepting matches.
	ErrRequestNotOpen = errors.New("match: request not open")
	// ErrInvalidUrgency indicates urgency outside [1,10].
	ErrInvalidUrgency = errors.New("match: urgency out of range")
	// ErrNoProviders indicates the directory returned no active providers.
	ErrNoProviders = errors.New("match: no providers available")
	// ErrNoEligibleProviders indicates every candidate failed the
	// reputation or overlap thresholds.
	ErrNoEligibleProviders = errors.New("match: no eligible providers")
	// ErrInvalidStatus indicates a status outside the updatable set.
	ErrInvalidStatus = errors.New("match: invalid match status")
	// ErrUpdateNotAllowed indicates the match is completed and therefore
	// immutable.
	ErrUpdateNotAllowed = errors.New("match: completed match cannot be updated")
	// ErrCapacityExceeded indicates the proposal table is at its configured
	// limit.
	ErrCapacityExceeded = errors.New("match: proposal capacity exceeded")

	errNilState         = errors.New("match: state not configured")
	errNilParams        = errors.New("match: params not configured")
	errNilCollaborators = errors.New("match: collaborators not configured")
	errNilEscrow        = errors.New("match: escrow ledger not configured")
)
