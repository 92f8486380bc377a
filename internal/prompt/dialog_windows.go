//go:build windows

package prompt

import (
	"fmt"
	"runtime"

	"github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"
)

// bifNewDialogStyle | bifReturnOnlyFSDirs
const browseFlags = 0x40 | 0x01

func browseForFolder(owner uintptr, title string) (string, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	ole.CoInitialize(0)
	defer ole.CoUninitialize()

	unknown, err := oleutil.CreateObject("Shell.Application")
	if err != nil {
		return "", fmt.Errorf("failed to create Shell object: %w", err)
	}
	defer unknown.Release()

	shell, err := unknown.QueryInterface(ole.IID_IDispatch)
	if err != nil {
		return "", fmt.Errorf("failed to get IDispatch interface: %w", err)
	}
	defer shell.Release()

	folderObj, err := oleutil.CallMethod(shell, "BrowseForFolder", int(owner), title, browseFlags)
	if err != nil {
		return "", fmt.Errorf("failed to show folder dialog: %w", err)
	}
	defer folderObj.Clear()

	if folderObj.Value() == nil {
		return "", ErrNoFolder
	}
	folder := folderObj.ToIDispatch()
	if folder == nil {
		return "", ErrNoFolder
	}

	selfProp, err := oleutil.GetProperty(folder, "Self")
	if err != nil {
		return "", fmt.Errorf("failed to get folder item: %w", err)
	}
	defer selfProp.Clear()

	pathProp, err := oleutil.GetProperty(selfProp.ToIDispatch(), "Path")
	if err != nil {
		return "", fmt.Errorf("failed to get folder path: %w", err)
	}
	defer pathProp.Clear()

	path := pathProp.ToString()
	if path == "" {
		return "", ErrNoFolder
	}
	return path, nil
}
