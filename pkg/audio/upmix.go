package audio

import (
	"log/slog"
	"sync"
)

// UpmixMono duplicates each int16 mono sample across channels interleaved
// output channels. Given N input samples the result holds N*channels samples
// with output[i*channels+c] == input[i] for every channel c. This is channel
// duplication, not stereo synthesis; channels == 1 returns the input
// unchanged (zero allocation).
//
// Input must be little-endian int16 PCM (2 bytes per sample).
func UpmixMono(pcm []byte, channels int) []byte {
	if channels <= 1 {
		return pcm
	}
	samples := len(pcm) / BytesPerSample
	out := make([]byte, samples*channels*BytesPerSample)
	for i := 0; i < samples; i++ {
		lo, hi := pcm[i*BytesPerSample], pcm[i*BytesPerSample+1]
		base := i * channels * BytesPerSample
		for c := 0; c < channels; c++ {
			out[base+c*BytesPerSample] = lo
			out[base+c*BytesPerSample+1] = hi
		}
	}
	return out
}

// MonoToStereo duplicates each int16 mono sample into a stereo L+R pair.
// It is the two-channel special case of [UpmixMono], kept as a named helper
// because stereo virtual cables are the overwhelmingly common target.
func MonoToStereo(pcm []byte) []byte {
	return UpmixMono(pcm, 2)
}

// Upmixer converts remote-service chunks to the output device's channel
// count. It validates PCM alignment and logs a warning on the first corrupt
// chunk rather than once per callback. Create one per stream; not designed
// for shared use across goroutines.
type Upmixer struct {
	// Channels is the output device channel count.
	Channels int

	// Source is the chunk channel count, zero meaning mono. Chunks already
	// interleaved at Source > 1 pass through unchanged; duplication is only
	// defined from mono.
	Source int

	warnedCorrupt sync.Once
}

// Upmix converts a chunk to the target channel count. Chunks whose byte
// count is not int16-aligned are dropped (nil return). When Source equals
// Channels the chunk is returned as-is.
func (u *Upmixer) Upmix(pcm []byte) []byte {
	if len(pcm)%BytesPerSample != 0 {
		u.warnedCorrupt.Do(func() {
			slog.Warn("upmixer: odd byte count in PCM chunk, dropping",
				"bytes", len(pcm),
				"channels", u.Channels,
			)
		})
		return nil
	}
	if u.Source > 1 {
		return pcm
	}
	return UpmixMono(pcm, u.Channels)
}
