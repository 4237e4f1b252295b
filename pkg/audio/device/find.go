package device

import "strings"

// virtualCableNames are substrings that identify software loopback devices
// across platforms: BlackHole on macOS, VB-Cable and Voicemeeter on Windows,
// PulseAudio/PipeWire null sinks on Linux.
var virtualCableNames = []string{
	"blackhole",
	"cable",
	"vb-audio",
	"virtual cable",
	"voicemeeter",
	"virtualcable",
	"null",
	"pipewire",
}

// Kind narrows a name search to devices with a particular capability.
type Kind int

const (
	// AnyKind matches every device.
	AnyKind Kind = iota

	// InputKind matches devices with at least one capture channel.
	InputKind

	// OutputKind matches devices with at least one playback channel.
	OutputKind
)

func (k Kind) matches(d Info) bool {
	switch k {
	case InputKind:
		return d.MaxInputChannels > 0
	case OutputKind:
		return d.MaxOutputChannels > 0
	default:
		return true
	}
}

// FindByName returns the first device whose name contains name
// (case-insensitive) and satisfies kind. The second return value reports
// whether a match was found.
func FindByName(devices []Info, name string, kind Kind) (Info, bool) {
	needle := strings.ToLower(name)
	for _, d := range devices {
		if strings.Contains(strings.ToLower(d.Name), needle) && kind.matches(d) {
			return d, true
		}
	}
	return Info{}, false
}

// FindByID resolves an opaque device identifier against devices: a backend
// ID (for the portaudio host, the decimal device index), then an exact name,
// then a case-insensitive substring of the name. The first match satisfying
// kind wins, so an exact name always beats a device it happens to be a
// substring of.
func FindByID(devices []Info, id string, kind Kind) (Info, bool) {
	for _, d := range devices {
		if d.ID == id && kind.matches(d) {
			return d, true
		}
	}
	for _, d := range devices {
		if d.Name == id && kind.matches(d) {
			return d, true
		}
	}
	return FindByName(devices, id, kind)
}

// IsVirtualCable reports whether the device name looks like a software
// loopback device. Name heuristics only — a wrongly named physical device
// will be misclassified, which is why configuration always wins over
// detection.
func IsVirtualCable(d Info) bool {
	name := strings.ToLower(d.Name)
	for _, cable := range virtualCableNames {
		if strings.Contains(name, cable) {
			return true
		}
	}
	return false
}

// FindVirtualCables returns every output-capable device that looks like a
// virtual cable.
func FindVirtualCables(devices []Info) []Info {
	var cables []Info
	for _, d := range devices {
		if d.MaxOutputChannels > 0 && IsVirtualCable(d) {
			cables = append(cables, d)
		}
	}
	return cables
}
