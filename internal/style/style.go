// Package style produces visual specifications for markers and clusters.
// All functions are pure; the tier tables are fixed configuration data.
package style

// MarkerSpec describes how a single memory marker is drawn.
type MarkerSpec struct {
	Color    string `json:"color"`
	Selected bool   `json:"selected"`
	Size     int    `json:"size"`
	GlowSize int    `json:"glow_size"`
}

// Marker builds the visual spec for a memory marker. Selection bumps both
// the marker and its glow to the larger of the two fixed size tiers.
func Marker(color string, selected bool) MarkerSpec {
	size, glow := 36, 48
	if selected {
		size, glow = 48, 60
	}
	return MarkerSpec{
		Color:    color,
		Selected: selected,
		Size:     size,
		GlowSize: glow,
	}
}

// Intensity is a cluster's visual heat band.
type Intensity string

// Intensity bands, hotter with more members.
const (
	IntensityLow      Intensity = "low"
	IntensityMedium   Intensity = "medium"
	IntensityHigh     Intensity = "high"
	IntensityVeryHigh Intensity = "very-high"
)

// rank orders intensities for monotonicity checks.
func (i Intensity) rank() int {
	switch i {
	case IntensityLow:
		return 0
	case IntensityMedium:
		return 1
	case IntensityHigh:
		return 2
	case IntensityVeryHigh:
		return 3
	}
	return -1
}

// HotterOrEqual reports whether i is at least as hot as other.
func (i Intensity) HotterOrEqual(other Intensity) bool {
	return i.rank() >= other.rank()
}

// ClusterSpec describes how a cluster badge is drawn.
type ClusterSpec struct {
	Count     int       `json:"count"`
	Size      int       `json:"size"`
	FontSize  int       `json:"font_size"`
	Intensity Intensity `json:"intensity"`
	Gradient  string    `json:"gradient"`
}

// cluster gradient bands keyed by intensity.
var gradients = map[Intensity]string{
	IntensityLow:      "linear-gradient(135deg, #94a3b8 0%, #64748b 100%)",
	IntensityMedium:   "linear-gradient(135deg, #667eea 0%, #764ba2 100%)",
	IntensityHigh:     "linear-gradient(135deg, #f093fb 0%, #f5576c 100%)",
	IntensityVeryHigh: "linear-gradient(135deg, #4facfe 0%, #00f2fe 100%)",
}

// Cluster builds the visual spec for a cluster of count members. Size and
// font step up at 10 and 100 members; the color band steps up at 5, 15, and
// 30. Both steps are monotonic in count.
func Cluster(count int) ClusterSpec {
	size, font := 40, 14
	switch {
	case count >= 100:
		size, font = 60, 18
	case count >= 10:
		size, font = 50, 16
	}

	intensity := IntensityLow
	switch {
	case count >= 30:
		intensity = IntensityVeryHigh
	case count >= 15:
		intensity = IntensityHigh
	case count >= 5:
		intensity = IntensityMedium
	}

	return ClusterSpec{
		Count:     count,
		Size:      size,
		FontSize:  font,
		Intensity: intensity,
		Gradient:  gradients[intensity],
	}
}
