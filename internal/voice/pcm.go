package voice

const (
	sampleRate = 48000
	channels   = 2
	// frameSize is 20ms of audio per channel.
	frameSize    = 960
	frameSamples = frameSize * channels
	frameBytes   = frameSamples * 2
	opusBitrate  = 128000
	maxOpusBytes = frameBytes
)

// bytesToInt16 decodes little-endian s16 PCM.
func bytesToInt16(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples
}
