package shared

import "fmt"

var (
	// Configuration errors are fatal before any pass starts.
	ErrConfig             = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// API error kinds. Transient failures are retried with bounded backoff,
	// permanent failures skip the record, auth failures abort the pass.
	ErrTransientAPI = fmt.Errorf("transient API failure")
	ErrPermanentAPI = fmt.Errorf("permanent API failure")
	ErrAuthFailed   = fmt.Errorf("authentication failed")

	// ErrMapping marks a record that cannot be turned into a CRM field set.
	// Record-level: the pass logs the record and continues.
	ErrMapping = fmt.Errorf("record not mappable")

	// ErrStorage marks a local state store failure. Pass-fatal: the current
	// pass aborts and the previously committed cursor stays in place.
	ErrStorage = fmt.Errorf("storage failure")

	// Input validation errors
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrMissingArgument = fmt.Errorf("missing required argument")
)
