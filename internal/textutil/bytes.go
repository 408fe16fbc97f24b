// Package textutil holds small formatting helpers shared by the API and tools.
package textutil

import (
	"math"
	"strconv"
)

// Size unit families accepted by FormatBytes.
const (
	SizeNormal   = "normal"
	SizeAccurate = "accurate"
)

var (
	normalUnits   = []string{"Bytes", "KB", "MB", "GB", "TB"}
	accurateUnits = []string{"Bytes", "KiB", "MiB", "GiB", "TiB"}
)

// BytesOptions controls FormatBytes output.
type BytesOptions struct {
	Decimals int
	SizeType string // SizeNormal (default) or SizeAccurate
}

// FormatBytes renders a byte count using base-1024 units, e.g. 2048 -> "2 KB".
func FormatBytes(bytes int64, opts ...BytesOptions) string {
	var o BytesOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	if o.Decimals < 0 {
		o.Decimals = 0
	}

	if bytes == 0 {
		return "0 Byte"
	}

	units := normalUnits
	if o.SizeType == SizeAccurate {
		units = accurateUnits
	}

	abs := math.Abs(float64(bytes))
	i := 0
	if abs >= 1 {
		i = int(math.Floor(math.Log(abs) / math.Log(1024)))
	}
	i = min(i, len(units)-1)

	value := float64(bytes) / math.Pow(1024, float64(i))
	return strconv.FormatFloat(value, 'f', o.Decimals, 64) + " " + units[i]
}
