package aggregator

import (
	"github.com/cockroachdb/errors"
)

// errHistogramBadMagic is returned by DeserializeHistogram when the input
// doesn't start with the expected magic bytes.
var errHistogramBadMagic = errors.New("aggregator: malformed histogram serialization")

// ErrEventsClosed and ErrRPCsClosed are the two clean-exit sentinels Run
// returns when its input channels are closed: no error is reported back
// to producers, but the embedder's call to Run still needs to
// distinguish "stopped cleanly" from "aborted on a fatal
// producer-contract violation".
var (
	ErrEventsClosed = errors.New("aggregator: event channel closed")
	ErrRPCsClosed   = errors.New("aggregator: subscription channel closed")
)

// errAttrKindMismatch is the internal sentinel applyAttrUpdate returns
// when an update's kind disagrees with its attribute's established kind;
// the reducer translates it into a *FatalError carrying the offending
// resource and attribute name before surfacing it.
var errAttrKindMismatch = errors.New("aggregator: attribute kind mismatch")

// FatalError reports a producer-contract violation the reducer cannot
// safely ignore: an attribute update changed the stored type of an
// existing attribute (text vs numeric). This aborts the aggregator
// rather than silently corrupting aggregated data.
type FatalError struct {
	ResourceID    uint64
	AttributeName string
	Reason        string
	cause         error
}

func (e *FatalError) Error() string {
	return e.cause.Error()
}

func (e *FatalError) Unwrap() error {
	return e.cause
}

func newAttrTypeMismatchError(resourceID uint64, name string, existing, update AttrValue) *FatalError {
	cause := errors.Newf(
		"aggregator: producer contract violation: attribute %q on resource %d changed kind (%s -> %s)",
		name, resourceID, attrKindName(existing), attrKindName(update),
	)
	return &FatalError{
		ResourceID:    resourceID,
		AttributeName: name,
		Reason:        "attribute type mismatch",
		cause:         cause,
	}
}

func attrKindName(v AttrValue) string {
	switch v.(type) {
	case TextAttr:
		return "text"
	case NumericAttr:
		return "numeric"
	default:
		return "unset"
	}
}
