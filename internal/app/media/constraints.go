// Package media provides local capture for publishing and remote stream
// handling for viewing.
package media

// Range is a numeric capability preference. Zero Max means unbounded.
type Range struct {
	Ideal int `mapstructure:"ideal"`
	Max   int `mapstructure:"max"`
}

// Fit returns the value a device should use when it supports at most
// capability: the ideal when reachable, otherwise the nearest bound.
func (r Range) Fit(capability int) int {
	v := r.Ideal
	if r.Max > 0 && v > r.Max {
		v = r.Max
	}
	if capability > 0 && v > capability {
		v = capability
	}
	return v
}

// Allows reports whether v does not exceed Max.
func (r Range) Allows(v int) bool {
	return r.Max <= 0 || v <= r.Max
}

type VideoConstraints struct {
	Width       Range   `mapstructure:"width"`
	Height      Range   `mapstructure:"height"`
	FrameRate   Range   `mapstructure:"frame_rate"`
	FacingMode  string  `mapstructure:"facing_mode"`
	AspectRatio float64 `mapstructure:"aspect_ratio"`
	ResizeMode  string  `mapstructure:"resize_mode"`
}

type AudioConstraints struct {
	EchoCancellation bool  `mapstructure:"echo_cancellation"`
	NoiseSuppression bool  `mapstructure:"noise_suppression"`
	AutoGainControl  bool  `mapstructure:"auto_gain_control"`
	ChannelCount     Range `mapstructure:"channel_count"`
	SampleRate       Range `mapstructure:"sample_rate"`
	SampleSize       Range `mapstructure:"sample_size"`
}

type Constraints struct {
	Video VideoConstraints `mapstructure:"video"`
	Audio AudioConstraints `mapstructure:"audio"`
}

func DefaultConstraints() Constraints {
	return Constraints{
		Video: VideoConstraints{
			Width:       Range{Ideal: 1280, Max: 1920},
			Height:      Range{Ideal: 720, Max: 1080},
			FrameRate:   Range{Ideal: 30, Max: 60},
			FacingMode:  "user",
			AspectRatio: 16.0 / 9.0,
			ResizeMode:  "crop-and-scale",
		},
		Audio: AudioConstraints{
			EchoCancellation: true,
			NoiseSuppression: true,
			AutoGainControl:  true,
			ChannelCount:     Range{Ideal: 2},
			SampleRate:       Range{Ideal: 48000},
			SampleSize:       Range{Ideal: 16},
		},
	}
}
