package version

// Build holds the build identifier, injected via -ldflags. Default "dev".
var Build = "dev"

// Commit is the short VCS revision, injected via -ldflags when available.
var Commit = ""

// String renders the identifier shown by the version command and /healthz.
func String() string {
	if Commit == "" {
		return Build
	}
	return Build + "+" + Commit
}
