package transcoder

import (
	"fmt"
	"strconv"
	"strings"
)

// FilterMode selects the audio filter chain.
type FilterMode string

const (
	FiltersEnhanced FilterMode = "enhanced"
	FiltersBasic    FilterMode = "basic"
	FiltersNone     FilterMode = "none"
)

const defaultVolume = 0.8

// Options control one transcoder run.
type Options struct {
	Volume  float64
	Filters FilterMode
}

func DefaultOptions() Options {
	return Options{Volume: defaultVolume, Filters: FiltersEnhanced}
}

// Band gains for the 18-band superequalizer, lowest band first.
var eqBands = [18]float64{
	1.2, 1.15, 1.1, 1.05, 1.0, 1.0, 1.0, 1.0, 1.0,
	1.0, 1.0, 1.05, 1.05, 1.1, 1.05, 1.0, 0.95, 0.9,
}

// FilterChain renders the -af argument for opts; empty means no filtering.
func FilterChain(opts Options) string {
	volume := "volume=" + strconv.FormatFloat(opts.volume(), 'f', -1, 64)

	switch opts.Filters {
	case FiltersNone:
		return ""
	case FiltersBasic:
		return "loudnorm=I=-30:LRA=4:TP=-2," + volume
	}

	bands := make([]string, len(eqBands))
	for i, g := range eqBands {
		bands[i] = fmt.Sprintf("%db=%s", i+1, strconv.FormatFloat(g, 'f', -1, 64))
	}

	return strings.Join([]string{
		"afftdn=nr=10:nf=-25",
		"loudnorm=I=-30:LRA=4:TP=-2",
		"superequalizer=" + strings.Join(bands, ":"),
		"acompressor=threshold=0.089:ratio=9:attack=200:release=1000",
		volume,
	}, ",")
}

func (o Options) volume() float64 {
	if o.Volume <= 0 {
		return defaultVolume
	}
	return o.Volume
}

// Args builds the ffmpeg command line that turns url into raw 48kHz stereo PCM on stdout.
func Args(url string, opts Options) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "warning",
		"-nostdin",
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "5",
		"-i", url,
	}
	if chain := FilterChain(opts); chain != "" {
		args = append(args, "-af", chain)
	}
	return append(args,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", "48000",
		"-ac", "2",
		"-bufsize", "64k",
		"-",
	)
}
