package version

// Build holds the build identifier, injected via -ldflags. Default "dev".
var Build = "dev"

// String formats the build for -v output.
func String(component string) string {
	return component + " version=" + Build
}
