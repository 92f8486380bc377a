//go:build windows

package console

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	kernel32         = windows.NewLazySystemDLL("kernel32.dll")
	user32           = windows.NewLazySystemDLL("user32.dll")
	attachConsole    = kernel32.NewProc("AttachConsole")
	allocConsole     = kernel32.NewProc("AllocConsole")
	getConsoleWindow = kernel32.NewProc("GetConsoleWindow")
	setConsoleTitle  = kernel32.NewProc("SetConsoleTitleW")
	showWindow       = user32.NewProc("ShowWindow")
	setFocus         = user32.NewProc("SetFocus")
)

const (
	attachParentProcess = ^uint32(0)
	swShowNormal        = 1
)

func validHandle(h windows.Handle) bool {
	return h != 0 && h != windows.InvalidHandle
}

// Attach attaches to the parent console or opens a new one when the
// installer was started by double-clicking. It returns false when no console
// is available.
func Attach() bool {
	if h, err := windows.GetStdHandle(windows.STD_OUTPUT_HANDLE); err == nil && validHandle(h) {
		attached = true
		return true
	}

	allocated := false
	if r, _, _ := attachConsole.Call(uintptr(attachParentProcess)); r == 0 {
		if r, _, _ := allocConsole.Call(); r == 0 {
			return false
		}
		allocated = true
	}

	if h, err := windows.GetStdHandle(windows.STD_OUTPUT_HANDLE); err == nil && validHandle(h) {
		os.Stdout = os.NewFile(uintptr(h), "/dev/stdout")
	}
	if h, err := windows.GetStdHandle(windows.STD_ERROR_HANDLE); err == nil && validHandle(h) {
		os.Stderr = os.NewFile(uintptr(h), "/dev/stderr")
	}
	if h, err := windows.GetStdHandle(windows.STD_INPUT_HANDLE); err == nil && validHandle(h) {
		os.Stdin = os.NewFile(uintptr(h), "/dev/stdin")
	}

	if allocated {
		if hwnd := Window(); hwnd != 0 {
			showWindow.Call(hwnd, swShowNormal)
			setFocus.Call(hwnd)
		}
	}

	attached = true
	return true
}

// SetTitle sets the console window title.
func SetTitle(title string) error {
	if !attached {
		return nil
	}
	p, err := windows.UTF16PtrFromString(title)
	if err != nil {
		return err
	}
	if r, _, err := setConsoleTitle.Call(uintptr(unsafe.Pointer(p))); r == 0 {
		return fmt.Errorf("SetConsoleTitle failed: %w", err)
	}
	return nil
}

// Window returns the console window handle, or 0.
func Window() uintptr {
	if err := getConsoleWindow.Find(); err != nil {
		return 0
	}
	hwnd, _, _ := getConsoleWindow.Call()
	return hwnd
}
