package chat

import (
	"errors"
	"sessionchat/internal/storage"
	"strings"
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrUserNotFound    = errors.New("user not found")
	ErrGroupNotFound   = errors.New("group not found")
	ErrInvalidPassword = errors.New("invalid group password")
	ErrUsernameTaken   = errors.New("username is taken by an online user")
	ErrNotParticipant  = errors.New("user is not a chat participant")
)

// FieldError describes why a single input field was rejected
type FieldError struct {
	Field   string
	Message string
}

// ValidationError is returned before any write when input is rejected.
// errors.Is(err, ErrValidation) holds for it.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, "field \""+f.Field+"\" "+f.Message)
	}
	return strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, message string) error {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// notFound translates storage sentinels into the service taxonomy
func notFound(err error) error {
	switch {
	case errors.Is(err, storage.ErrUserNotExist):
		return ErrUserNotFound
	case errors.Is(err, storage.ErrGroupNotExist):
		return ErrGroupNotFound
	default:
		return err
	}
}
