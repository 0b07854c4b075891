// Package version holds build information set with -ldflags, e.g.
//
//	go build -ldflags "-X github.com/zsmith-jtec/AFKPI/internal/version.Version=v1.2.0"
package version

var (
	Version = "unknown"
	Commit  = "unknown"
)

func GetVersion() string {
	return Version
}

func GetCommit() string {
	return Commit
}
