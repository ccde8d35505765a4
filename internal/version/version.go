// Package version holds build identity used in logs and the status endpoint.
package version

var (
	// AppName is the bot's display name used in logs and the status surface.
	AppName = "MemeJoin"

	// Version is overridden at build time via -ldflags.
	Version = "dev"
)
