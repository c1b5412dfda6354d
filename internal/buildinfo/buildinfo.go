// Package buildinfo carries the version stamped into the binary with
//
//	-ldflags "-X smpboot/internal/buildinfo.Version=... -X ...Commit=... -X ...Date=..."
package buildinfo

var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Short returns a compact build identifier for the boot banner and window title.
func Short() string {
	if Version != "" && Version != "dev" {
		return Version
	}
	if Commit != "" && Commit != "unknown" {
		return Commit
	}
	return "dev"
}

// BuildTime returns the build date, or "unknown" when it was not stamped.
func BuildTime() string {
	if Date == "" {
		return "unknown"
	}
	return Date
}
