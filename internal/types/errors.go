package types

import "errors"

// Kind groups failures by how the pipeline reacts to them.
type Kind int

const (
	// KindOther is anything not covered below.
	KindOther Kind = iota
	// KindDeviceUnavailable means the camera or stream cannot deliver frames. Retried.
	KindDeviceUnavailable
	// KindDecode means a single frame could not be decoded or analyzed. Skipped.
	KindDecode
	// KindPersistence means the ledger could not be written. Reported, pipeline keeps running.
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindDeviceUnavailable:
		return "device-unavailable"
	case KindDecode:
		return "decode-error"
	case KindPersistence:
		return "persistence-error"
	default:
		return "other"
	}
}

var (
	ErrDeviceUnavailable = errors.New("device unavailable")
	ErrDecode            = errors.New("frame decode failed")
	ErrPersistence       = errors.New("ledger persistence failed")
)

// Classify maps an error onto its Kind.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindOther
	case errors.Is(err, ErrDeviceUnavailable):
		return KindDeviceUnavailable
	case errors.Is(err, ErrDecode):
		return KindDecode
	case errors.Is(err, ErrPersistence):
		return KindPersistence
	default:
		return KindOther
	}
}
