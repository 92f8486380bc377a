//go:build !linux && !darwin && !windows

package syscheck

// FreeBytes is not implemented here; the disk check is skipped.
func FreeBytes(string) (uint64, error) {
	return 0, ErrUnsupported
}
