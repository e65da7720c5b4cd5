package blesniffer

import "errors"

var (
	ErrResourceUnavailable = errors.New("radio resource unavailable")
	ErrOutOfMemory         = errors.New("receive buffer allocation failed")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrInvalidState        = errors.New("invalid state")
)

// errno values reported by the radio firmware.
const (
	enomem = 12
	enodev = 19
	einval = 22
)

// Errno maps err onto the negative errno status code used by the radio
// firmware interface. Invalid state is reported as -EINVAL, as the firmware
// does not distinguish it from a bad argument.
func Errno(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrResourceUnavailable):
		return -enodev
	case errors.Is(err, ErrOutOfMemory):
		return -enomem
	default:
		return -einval
	}
}
