// ABOUTME: Version and product identity constants
// ABOUTME: Single place updated at release time
package version

const (
	Version      = "0.1.0"
	Product      = "ZoneSync"
	Manufacturer = "ZoneSync Audio"
)
