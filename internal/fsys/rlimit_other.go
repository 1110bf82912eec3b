//go:build !unix

package fsys

import "errors"

const (
	RlimitNoFile = 7
	RlimInfinity = ^uint64(0)
)

var errNoRlimit = errors.New("rlimit not supported on this platform")

func setRlimit(resource int, soft, hard uint64) error {
	return errNoRlimit
}

func GetRlimit(resource int) (soft, hard uint64, err error) {
	return 0, 0, errNoRlimit
}
