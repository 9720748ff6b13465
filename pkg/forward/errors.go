package forward

import (
	"errors"
	"fmt"

	"github.com/polisai/toolgate/pkg/domain"
)

// TransportError reports a forwarded call that produced no usable response:
// a connection failure, a timeout, a non-2xx status or a non-JSON body.
type TransportError struct {
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("forward to %s: upstream status %d: %v", e.URL, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("forward to %s: upstream status %d", e.URL, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("forward to %s: %v", e.URL, e.Err)
	default:
		return "forward to " + e.URL + ": transport failure"
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == domain.ErrTransport
}

// errInvalidJSON marks a 2xx response whose body is not JSON.
var errInvalidJSON = errors.New("upstream response is not valid JSON")
