// Package version provides build version information.
package version

import "fmt"

// Version is the current version of haltpoint.
const Version = "0.1.0"

// Info returns the full version string for banners and flags.
func Info() string {
	return fmt.Sprintf("haltpoint v%s", Version)
}
