package collections

import (
	"errors"
	"fmt"

	"github.com/angelmondragon/storefront-collections/internal/collections/local"
	pkgerrors "github.com/angelmondragon/storefront-collections/pkg/errors"
)

var (
	// ErrCapacityExceeded rejects an add that would grow a compare list past its limit.
	ErrCapacityExceeded = errors.New("collection capacity exceeded")
	// ErrDuplicateEntry rejects an add for a product that is already present.
	ErrDuplicateEntry = errors.New("product already in collection")
	// ErrRemoteUnavailable reports a storefront API failure whose device
	// fallback also failed.
	ErrRemoteUnavailable = errors.New("remote collection unavailable")
	// ErrMalformedLocalData is logged when device storage cannot be decoded.
	// Loads recover by treating the data as empty so callers never see it.
	ErrMalformedLocalData = local.ErrMalformed
	// ErrUnsupported rejects an operation the collection kind does not offer.
	ErrUnsupported = errors.New("operation not supported for collection")
)

// OpError carries the user-facing message for a rejected operation while
// still matching its sentinel with errors.Is.
type OpError struct {
	Kind    error
	Message string
	Err     error
}

func (e *OpError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newOpError(kind error, message string, cause error) *OpError {
	return &OpError{Kind: kind, Message: message, Err: cause}
}

// MessageOf returns the text a UI should show for err.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var op *OpError
	if errors.As(err, &op) {
		return op.Message
	}
	return err.Error()
}

// ToAPIError maps collection errors onto the shared error codes.
func ToAPIError(err error) error {
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil && !errors.Is(err, ErrRemoteUnavailable) {
		return typed
	}
	msg := MessageOf(err)
	switch {
	case errors.Is(err, ErrCapacityExceeded), errors.Is(err, ErrDuplicateEntry):
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, msg)
	case errors.Is(err, ErrUnsupported):
		return pkgerrors.Wrap(pkgerrors.CodeUnsupported, err, msg)
	case errors.Is(err, ErrRemoteUnavailable):
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
	default:
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "collection operation failed")
	}
}
