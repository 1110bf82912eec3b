//go:build unix

package fsys

import "golang.org/x/sys/unix"

// RlimitNoFile is the open file descriptor limit.
const RlimitNoFile = unix.RLIMIT_NOFILE

// RlimInfinity means no limit.
const RlimInfinity = ^uint64(0)

func setRlimit(resource int, soft, hard uint64) error {
	return unix.Setrlimit(resource, &unix.Rlimit{Cur: soft, Max: hard})
}

// GetRlimit returns the current soft and hard limits of resource.
func GetRlimit(resource int) (soft, hard uint64, err error) {
	var lim unix.Rlimit
	if err := unix.Getrlimit(resource, &lim); err != nil {
		return 0, 0, err
	}
	return lim.Cur, lim.Max, nil
}
