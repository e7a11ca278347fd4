package diagnostics

import "github.com/dustin/go-humanize"

// HumanBytes renders a byte count the way heap-map and listing dumps
// present allocation sizes, e.g. "1.2 kB".
func HumanBytes(n uint64) string {
	return humanize.Bytes(n)
}
