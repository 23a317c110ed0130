// Package buildconfig exposes values stamped in at link time:
//
//	go build -ldflags "-X github.com/Harshitk-cp/tenet/internal/buildconfig.version=v1.2.0 \
//	  -X github.com/Harshitk-cp/tenet/internal/buildconfig.commit=$(git rev-parse --short HEAD)"
package buildconfig

var (
	version = "dev"
	commit  = "unknown"
)

func Version() string {
	return version
}

func Commit() string {
	return commit
}

// UserAgent identifies this build to outbound services.
func UserAgent() string {
	return "tenet/" + version + " (" + commit + ")"
}

// VersionInfo is reported by the health endpoint.
func VersionInfo() map[string]string {
	return map[string]string{
		"version": version,
		"commit":  commit,
	}
}
