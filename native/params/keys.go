package params

// Canonical parameter store keys for the governed settlement
// configuration.
const (
	KeyAuthority            = "settlement.authority"
	KeyFeeRate              = "settlement.feeRatePercent"
	KeyMaxEscrows           = "settlement.maxEscrows"
	KeyMaxProposals         = "settlement.maxProposals"
	KeyMinReputation        = "settlement.minReputation"
	KeyMinTagOverlap        = "settlement.minTagOverlap"
	KeyMaxProvidersPerMatch = "settlement.maxProvidersPerMatch"
	KeyProposalExpiry       = "settlement.proposalExpirySeconds"
)

// Defaults applied when a parameter has never been set.
const (
	DefaultFeeRate              uint64 = 2
	DefaultMaxEscrows           uint64 = 100
	DefaultMaxProposals         uint64 = 100
	DefaultMinReputation        uint64 = 50
	DefaultMinTagOverlap        uint64 = 20
	DefaultMaxProvidersPerMatch uint64 = 10
	DefaultProposalExpiry       int64  = 3600
)
