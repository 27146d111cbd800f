// Package buildinfo carries the version stamped in by the linker:
//
//	go build -ldflags "-X rmk/internal/buildinfo.Version=v0.4.0 -X rmk/internal/buildinfo.Commit=$(git rev-parse --short HEAD)"
package buildinfo

import "hash/crc32"

var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Short is the version if one was stamped, else the commit, else "dev".
func Short() string {
	switch {
	case Version != "" && Version != "dev":
		return Version
	case Commit != "" && Commit != "unknown":
		return Commit
	}
	return "dev"
}

// Hash identifies this firmware build plus whatever compiled-in data the
// caller passes (the default keymap, usually). A stored layout from another
// hash is discarded at boot.
func Hash(parts ...string) uint32 {
	h := crc32.NewIEEE()
	for _, s := range append([]string{Version, Commit, Date}, parts...) {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	return h.Sum32()
}
