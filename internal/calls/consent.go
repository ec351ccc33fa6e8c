package calls

import "time"

// RecordConsent sets the consent flag. The flag never flips back to false.
func RecordConsent(call *Call) error {
	if call.Status.Terminal() {
		return ErrAlreadyTerminal
	}
	if call.ConsentToBook {
		return nil
	}
	call.ConsentToBook = true
	call.UpdatedAt = time.Now().UTC()
	return nil
}

// RequireConsent succeeds only when consent was given and the call has
// reached the consent stage. Any failure is fatal to booking for the call.
func RequireConsent(call *Call) error {
	if call == nil || !call.ConsentToBook || !call.State.AtLeast(StateConsent) {
		return ErrConsentRequired
	}
	return nil
}
