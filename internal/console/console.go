// Package console manages the terminal window the installer runs in.
package console

var attached bool

// IsAttached reports whether Attach found or created a console.
func IsAttached() bool {
	return attached
}
