// Package buildinfo carries version metadata injected at link time via
// -ldflags "-X github.com/polymath-app/polymath-go/internal/buildinfo.Version=...".
package buildinfo

var (
	Version   = "dev"
	Revision  = "unknown"
	BuildDate = "unknown"
)
