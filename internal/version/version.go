// ABOUTME: Version constants for the megamicros replay toolkit
// ABOUTME: Shared by the CLI, the stream server handshake, and mDNS records
package version

const (
	// Version is the toolkit release version.
	Version = "0.3.0"

	// Product is the human-readable product name.
	Product = "MegaMicros Replay Toolkit"

	// Manufacturer identifies the project publishing this software.
	Manufacturer = "MegaMicros Project"
)
