// Package session drives one user's generate workflow: upload an image, wait
// for it to be encoded, run a single generation attempt at a time, and publish
// the outcome.
//
// Only the most recently started attempt for the current upload may change
// state. Earlier attempts keep running to completion (there is no real
// cancellation) and their results are dropped when they land.
package session

import (
	"errors"
	"time"

	"github.com/shrayg/beybladez/internal/imagegen"
)

// State is the externally visible workflow state.
type State int

const (
	Idle State = iota
	Uploaded
	Generating
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Uploaded:
		return "uploaded"
	case Generating:
		return "generating"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

var (
	// ErrBusy rejects a generate trigger while an attempt is in flight.
	ErrBusy = errors.New("generation already in progress")

	// ErrNotReady rejects a generate trigger while the upload is still encoding.
	ErrNotReady = errors.New("image is still being prepared")
)

// Asset is an uploaded image. The controller owns Data once uploaded.
type Asset struct {
	Name string
	Data []byte
	// DisplayURL is a local reference for previewing the upload.
	DisplayURL string
}

// Attempt identifies one generation attempt.
type Attempt struct {
	Token     uint64
	ID        string
	UploadSeq uint64
	StartedAt time.Time
}

// Snapshot is a point-in-time copy of the controller state.
type Snapshot struct {
	State        State
	AssetName    string
	DisplayURL   string
	HasAsset     bool
	PayloadReady bool
	Attempt      Attempt
	Result       imagegen.Result
	Published    string
}

// Reason returns the failure reason of the last result, if any.
func (s Snapshot) Reason() string {
	return s.Result.Reason()
}
