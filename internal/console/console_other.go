//go:build !windows

package console

// Attach reports whether stdout is usable. Terminals on other platforms are
// already attached to the process.
func Attach() bool {
	attached = true
	return true
}

// SetTitle is a no-op outside Windows.
func SetTitle(title string) error {
	return nil
}

// Window returns 0; there is no native console window handle.
func Window() uintptr {
	return 0
}
