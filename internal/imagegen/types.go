// Package imagegen issues image generation requests to a remote service and
// reduces the service's heterogeneous output into a single Result.
package imagegen

import (
	"context"
	"errors"

	"github.com/shrayg/beybladez/internal/encoder"
)

// Tool selects the capability requested from the remote service.
type Tool string

// ToolImageGeneration asks the service to synthesize an image.
const ToolImageGeneration Tool = "image_generation"

// KindImageGenerationCall tags output items that carry a generated image.
const KindImageGenerationCall = "image_generation_call"

// KindMessage tags text output items.
const KindMessage = "message"

// Generator performs one generation attempt. Implementations make exactly one
// network call, never retry, and report every failure inside the Result.
type Generator interface {
	Generate(ctx context.Context, req Request) Result
}

// Request is one attempt's input. It is built once per attempt and not
// modified afterwards.
type Request struct {
	Prompt string
	Image  encoder.Payload
	Tool   Tool
}

// NewRequest builds an image generation request for the encoded image.
func NewRequest(prompt string, image encoder.Payload) Request {
	return Request{
		Prompt: prompt,
		Image:  image,
		Tool:   ToolImageGeneration,
	}
}

// Result is the terminal outcome of one attempt.
type Result struct {
	// DataURI is set on success: data:image/png;base64,<payload>.
	DataURI string
	// Err is set on failure.
	Err *Error
}

// Success returns a successful Result.
func Success(dataURI string) Result {
	return Result{DataURI: dataURI}
}

// Failure returns a failed Result.
func Failure(err *Error) Result {
	return Result{Err: err}
}

// Succeeded reports whether the attempt produced an image.
func (r Result) Succeeded() bool {
	return r.Err == nil && r.DataURI != ""
}

// Reason is the user-displayable failure reason, or "" on success.
func (r Result) Reason() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Message
}

// OutputItem is one tagged element of a response's ordered output.
// Only items of kind KindImageGenerationCall carry a Result payload.
type OutputItem struct {
	Kind   string  `json:"type"`
	ID     string  `json:"id,omitempty"`
	Status string  `json:"status,omitempty"`
	Result *string `json:"result,omitempty"`
}

// SelectImage applies the first-match rule: the earliest image generation
// item in sequence order decides the outcome, whatever follows it.
func SelectImage(items []OutputItem) Result {
	for _, item := range items {
		if item.Kind != KindImageGenerationCall {
			continue
		}
		if item.Result == nil || *item.Result == "" {
			return Failure(NewError(KindEmptyResult, errors.New("image generation item has no result payload")))
		}
		return Success(encoder.DataURI(encoder.MIMEType, *item.Result))
	}
	return Failure(NewError(KindNoImageReturned, errors.New("no image generation item in response")))
}
