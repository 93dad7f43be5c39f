package orgapi

import (
	"errors"
	"fmt"
)

// FetchError covers any failed collaborator call: network errors, non-2xx
// responses, and success=false envelopes. It is always recoverable; callers
// keep their prior state and may retry.
type FetchError struct {
	Op         string // the endpoint operation, e.g. "list_organizations"
	StatusCode int    // zero when the request never got a response
	Message    string // server-supplied error string, when present
	Err        error  // underlying transport error, when present
}

func (e *FetchError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("orgapi: %s: %v", e.Op, e.Err)
	case e.Message != "":
		return fmt.Sprintf("orgapi: %s: status %d: %s", e.Op, e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("orgapi: %s: status %d", e.Op, e.StatusCode)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsFetchError reports whether err is (or wraps) a FetchError.
func IsFetchError(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe)
}
