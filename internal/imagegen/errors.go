package imagegen

import "errors"

// Kind categorizes why a generation attempt failed.
type Kind int

const (
	// KindValidation indicates generate was triggered with no usable input.
	KindValidation Kind = iota
	// KindEncodingFailed indicates the uploaded blob could not be read.
	KindEncodingFailed
	// KindTransport indicates a network, HTTP status, or body decoding failure.
	KindTransport
	// KindNoImageReturned indicates a well-formed response had no image item.
	KindNoImageReturned
	// KindEmptyResult indicates the first image item carried no payload.
	KindEmptyResult
	// KindMissingCredential indicates no API key was configured.
	KindMissingCredential
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "ValidationError"
	case KindEncodingFailed:
		return "EncodingFailed"
	case KindTransport:
		return "TransportError"
	case KindNoImageReturned:
		return "NoImageReturned"
	case KindEmptyResult:
		return "EmptyResult"
	case KindMissingCredential:
		return "MissingCredential"
	default:
		return "Unknown"
	}
}

// Error is a classified generation failure. Message is short and safe to
// show to the user; Err carries the technical detail, if any.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Default user-facing messages per failure kind.
const (
	msgValidation        = "Please upload an image first"
	msgEncodingFailed    = "Could not extract image data from uploaded file."
	msgTransport         = "An error occurred while generating the image."
	msgNoImage           = "Failed to generate image."
	msgMissingCredential = "No API key configured."
)

// NewError builds an Error of the given kind with its default message.
func NewError(kind Kind, err error) *Error {
	msg := msgTransport
	switch kind {
	case KindValidation:
		msg = msgValidation
	case KindEncodingFailed:
		msg = msgEncodingFailed
	case KindNoImageReturned, KindEmptyResult:
		msg = msgNoImage
	case KindMissingCredential:
		msg = msgMissingCredential
	}
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf reports the Kind of err if it is (or wraps) an *Error.
func KindOf(err error) (Kind, bool) {
	var genErr *Error
	if errors.As(err, &genErr) {
		return genErr.Kind, true
	}
	return 0, false
}
