//go:build tinygo && baremetal && !(rp2040 || rp2350)

package hal

// Boards without a supported flash driver run with storage disabled.
func newBoardFlash() Flash { return nullFlash{} }
