package registry

import "errors"

var (
	ErrSelfBlock   = errors.New("registry: a member cannot block or unblock themselves")
	ErrUnknownName = errors.New("registry: no member with that name")
)
