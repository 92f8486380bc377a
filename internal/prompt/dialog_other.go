//go:build !windows

package prompt

import "errors"

var errNoDialog = errors.New("folder dialog not available")

func browseForFolder(uintptr, string) (string, error) {
	return "", errNoDialog
}
