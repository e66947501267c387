package services

import "errors"

// Sentinel errors for the messaging core. Handlers map these to HTTP status
// codes with errors.Is; services wrap them with context via fmt.Errorf.
var (
	// ErrAllocationExhausted means no unique virtual number could be
	// synthesized within the configured retry bound. Retryable later.
	ErrAllocationExhausted = errors.New("virtual number allocation exhausted")

	// ErrAlreadyAssigned means the number is currently held by an identity.
	ErrAlreadyAssigned = errors.New("number already assigned")

	// ErrNumberNotFound means no matching number exists in the pool.
	ErrNumberNotFound = errors.New("number not found")

	// ErrNumberTaken is returned by NumberStore.Create when the store's
	// unique constraint rejects the row. The allocator treats it as a
	// collision and retries with a fresh candidate.
	ErrNumberTaken = errors.New("number taken")

	// ErrConsentDenied means the consent gate rejected adding an identity to
	// a patient-linked conversation.
	ErrConsentDenied = errors.New("consent denied")

	// ErrDuplicateParticipant means an active participant with the same
	// identity key already exists in the conversation.
	ErrDuplicateParticipant = errors.New("participant already in conversation")

	// ErrParticipantNotFound means no active participant matched.
	ErrParticipantNotFound = errors.New("participant not found")

	// ErrConversationNotFound means the conversation does not exist.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrConversationInactive means the conversation has been deactivated.
	ErrConversationInactive = errors.New("conversation is not active")
)
