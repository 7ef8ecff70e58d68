//go:build !linux

package durability

import "errors"

type fsStat struct {
	availableBytes uint64
	usedBytes      uint64
	totalBytes     uint64
}

// statfs has no portable stdlib implementation outside Linux; callers treat
// its error as "quota check unavailable" rather than a hard failure.
func statfs(path string, out *fsStat) error {
	return errors.New("durability: quota check unsupported on this platform")
}
