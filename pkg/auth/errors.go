package auth

import "errors"

// ErrPasswordTooShort is returned when a password fails the minimum policy.
// The message is intended to be shown to end users.
var ErrPasswordTooShort = errors.New("password must be at least 6 characters")
