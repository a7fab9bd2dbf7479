// Package version holds build metadata set with
//
//	-ldflags "-X cmm/internal/version.Version=v1.0.0 -X cmm/internal/version.Commit=abc123"
package version

var (
	// Version is a release tag such as v1.2.3. Empty for dev builds.
	Version = ""
	// Commit is the short git SHA.
	Commit = ""
	// Date is the UTC build time, RFC 3339.
	Date = ""
	// Dirty is "dirty" when built from a modified tree.
	Dirty = ""
)

// String returns Version for releases, "dev-<sha>" (with a trailing * when
// dirty) for builds that know their commit, and "dev" otherwise.
func String() string {
	if Version != "" {
		return Version
	}
	if Commit != "" {
		suffix := Commit
		if Dirty == "dirty" {
			suffix += "*"
		}
		return "dev-" + suffix
	}
	return "dev"
}
