//go:build linux

package durability

import "syscall"

type fsStat struct {
	availableBytes uint64
	usedBytes      uint64
	totalBytes     uint64
}

func statfs(path string, out *fsStat) error {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return err
	}
	blockSize := uint64(stat.Bsize)
	out.availableBytes = uint64(stat.Bavail) * blockSize
	out.totalBytes = uint64(stat.Blocks) * blockSize
	out.usedBytes = out.totalBytes - uint64(stat.Bfree)*blockSize
	return nil
}
