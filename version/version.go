// Package version exists solely so that we can store the version of this application
// in one location.
//
// The version is reported by the "version" sub-command, and nothing else needs it
// yet, but keeping it out of the main package lets it be set at build time with
// -ldflags without knowing anything about the rest of the tree.
package version

import "fmt"

var (
	// version is populated with our release tag at build time.
	version = "unreleased"
)

// GetVersionBanner returns a banner which is suitable for printing, to show our name,
// version, and homepage link.
func GetVersionBanner() string {

	str := fmt.Sprintf("cpmhostfs %s\n%s\n", version, "https://github.com/skx/cpmhostfs/")
	return str
}

// GetVersionString returns our version number as a string.
func GetVersionString() string {
	return version
}
