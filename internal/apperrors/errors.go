package apperrors

import (
	"errors"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrSponsorNotFound = errors.New("user has no sponsor")

	ErrAccountNotFound     = errors.New("account not found")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrEmptyReference      = errors.New("ledger reference is empty")
	ErrUnknownEntryKind    = errors.New("unknown ledger entry kind")
	ErrLedgerEntryNotFound = errors.New("ledger entry not found")
	ErrDuplicateReference  = errors.New("ledger entry with the reference already exists")
	ErrVersionConflict     = errors.New("account version changed concurrently")
	ErrLedgerMismatch      = errors.New("account balance does not match ledger entries")
	ErrInvalidCursor       = errors.New("invalid pagination cursor")

	ErrPlanNotFound            = errors.New("plan not found")
	ErrStakeOutOfRange         = errors.New("stake is out of plan range")
	ErrInvestmentNotFound      = errors.New("investment not found")
	ErrInvestmentAlreadyExists = errors.New("investment for the purchase already exists")
	ErrInvestmentStatusChanged = errors.New("investment status changed concurrently")
	ErrUnknownPayoutFrequency  = errors.New("unknown payout frequency")

	ErrTraversalDepthExceeded = errors.New("sponsor traversal depth exceeded")
	ErrSponsorCycle           = errors.New("sponsor graph contains a cycle")
	ErrInvalidCommissionRules = errors.New("invalid commission rules")

	ErrCampaignNotFound      = errors.New("campaign not found")
	ErrRecipientUnresolvable = errors.New("recipient has neither a registered user nor contact details")

	ErrJobNotFound          = errors.New("job not found")
	ErrJobAlreadyQueued     = errors.New("job with the dedupe key is already queued")
	ErrNoJobAvailable       = errors.New("no job available")
	ErrJobAttemptsExhausted = errors.New("job attempts exhausted")
	ErrUnknownJobKind       = errors.New("no handler registered for job kind")
)
