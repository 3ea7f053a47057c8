package groupplay

import "errors"

// Domain-level error values returned by the group play service.
var (
	ErrSessionNotFound      = errors.New("group session not found")
	ErrSessionExpired       = errors.New("group session expired")
	ErrInvalidJoinToken     = errors.New("invalid join token")
	ErrInvalidUserID        = errors.New("invalid user id")
	ErrInvalidGameType      = errors.New("invalid game type")
	ErrInvalidServiceConfig = errors.New("invalid service config")
)
