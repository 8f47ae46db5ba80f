package agent

import (
	"errors"
	"fmt"
)

// ErrorKind classifies agent errors.
type ErrorKind string

const (
	KindGeneration ErrorKind = "generation"
	KindParsing    ErrorKind = "parsing"
	KindExecution  ErrorKind = "execution"
	KindMaxSteps   ErrorKind = "max_steps"
)

var (
	ErrGeneration = errors.New("agent generation error")
	ErrParsing    = errors.New("agent parsing error")
	ErrExecution  = errors.New("agent execution error")
	ErrMaxSteps   = errors.New("agent reached max steps")

	// ErrEmptyResponse is returned when the model answers without choices.
	ErrEmptyResponse = errors.New("model returned no choices")
)

// AgentError is an error raised during a step.
type AgentError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AgentError) Error() string {
	return e.Message
}

func (e *AgentError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind.
func (e *AgentError) Is(target error) bool {
	return target == kindSentinel(e.Kind)
}

func kindSentinel(kind ErrorKind) error {
	switch kind {
	case KindGeneration:
		return ErrGeneration
	case KindParsing:
		return ErrParsing
	case KindExecution:
		return ErrExecution
	case KindMaxSteps:
		return ErrMaxSteps
	}
	return nil
}

// NewError creates an AgentError. The message is formatted with args.
func NewError(kind ErrorKind, cause error, format string, args ...any) *AgentError {
	return &AgentError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: cause}
}
