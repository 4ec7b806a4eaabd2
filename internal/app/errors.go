package app

import "errors"

var (
	ErrAllFieldsRequired  = errors.New("all fields are required")
	ErrEmailAlreadyExists = errors.New("email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidSession     = errors.New("invalid or expired session")
)
