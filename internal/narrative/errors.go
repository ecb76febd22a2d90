package narrative

import (
	"context"
	"errors"

	"crowdedhouse/internal/completion"
	"crowdedhouse/internal/store"
)

var (
	ErrCharacterNotFound = errors.New("character not found")
	ErrCharacterExists   = errors.New("character already exists")
	ErrParse             = errors.New("could not parse generated characters")
	ErrDelivery          = errors.New("delivery failed")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidTimeline   = errors.New("invalid timeline")
)

// Describe turns an engine error into a message fit for the people in the
// channel.
func Describe(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCharacterNotFound):
		return "no character by that name exists in this story"
	case errors.Is(err, ErrCharacterExists):
		return "a character by that name already exists in this story"
	case errors.Is(err, ErrParse):
		return "the narrator's answer could not be understood, nothing was created"
	case errors.Is(err, ErrDelivery):
		return "the story was saved but could not be posted in full"
	case errors.Is(err, ErrInvalidInput):
		return "that request is missing something: " + err.Error()
	case errors.Is(err, ErrInvalidTimeline):
		return "that timeline cannot be created: " + err.Error()
	case errors.Is(err, completion.ErrRateLimited):
		return "the narrator is busy, try again in a moment"
	case errors.Is(err, completion.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "the narrator took too long to answer, nothing was saved"
	case errors.Is(err, completion.ErrInvalidRequest):
		return "the narrator refused the request"
	case errors.Is(err, completion.ErrServiceUnavailable):
		return "the narrator is unavailable right now"
	case errors.Is(err, context.Canceled):
		return "the request was cancelled"
	case errors.Is(err, store.ErrNotFound):
		return "nothing was found"
	case errors.Is(err, store.ErrConflict):
		return "that already exists"
	default:
		return "something went wrong while telling the story"
	}
}
