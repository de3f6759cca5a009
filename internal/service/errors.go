package service

import "errors"

var (
	ErrConflict           = errors.New("username or email already taken")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrResetTokenInvalid  = errors.New("reset token invalid or expired")
	ErrNotFound           = errors.New("user not found")
	ErrNoFields           = errors.New("no fields to update")
	ErrPasswordTooShort   = errors.New("password must be at least 8 characters")
	ErrWrongPassword      = errors.New("current password is incorrect")
)
