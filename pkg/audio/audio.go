// Package audio defines the PCM helpers shared by the vcable routing engine.
//
// All audio flowing through the engine is 16-bit signed little-endian PCM.
// The remote-service side of the pipe is always mono; the device side is
// interleaved N-channel, where N is fixed per stream for the lifetime of a
// session. The only channel-layout change the engine performs is upmixing by
// duplication (see [UpmixMono]); downmixing and sample-rate conversion are
// deliberately out of scope.
//
// This package lives under pkg/ because device adapters and external harnesses
// are expected to exchange these types with the engine.
package audio

// BytesPerSample is the width of a single int16 PCM sample on the wire.
const BytesPerSample = 2
