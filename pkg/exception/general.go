package exception

import "github.com/yanun0323/errors"

// General errors
var (
	ErrNilInstance         = errors.New("nil instance")
	ErrArgumentUnsupported = errors.New("argument unsupported")
	ErrInternal            = errors.New("internal error")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrConnectionClose     = errors.New("connection closed")
)
