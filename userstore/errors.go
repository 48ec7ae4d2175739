package userstore

import "errors"

// ErrDuplicateLogin is returned by Create when the login is already taken.
var ErrDuplicateLogin = errors.New("login already exists")
