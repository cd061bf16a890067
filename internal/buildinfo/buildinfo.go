// Package buildinfo carries the values stamped in at link time with
// -ldflags "-X github.com/bloops-games/carousing/internal/buildinfo.Version=...".
package buildinfo

var (
	Name    = "carousing"
	Version = "dev"
	Commit  = "none"
)

func String() string {
	return Name + " " + Version + " (" + Commit + ")"
}
