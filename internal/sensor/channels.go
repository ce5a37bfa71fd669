// Package sensor defines the measurement channels, reading quality
// assessment, and sample sources feeding the storage engine.
//
// All channel values are fixed-point integers. Fractional quantities use
// milli-units (22.5 degrees C is stored as 22500) so records never carry
// floating point.
package sensor

import "github.com/trevorflahardy/baro/internal/storage/types"

// Channel identifies one slot in a sample's value array. The index is part
// of the on-disk layout and must never be reassigned.
type Channel int

const (
	ChannelPressure    Channel = iota // pascals
	ChannelTemperature                // milli-degrees Celsius
	ChannelHumidity                   // milli-percent relative humidity
	ChannelCO2                        // parts per million
	ChannelIlluminance                // milli-lux

	channelCount
)

type channelInfo struct {
	name string
	unit string
}

var registry = [channelCount]channelInfo{
	ChannelPressure:    {"pressure", "Pa"},
	ChannelTemperature: {"temperature", "m°C"},
	ChannelHumidity:    {"humidity", "m%RH"},
	ChannelCO2:         {"co2", "ppm"},
	ChannelIlluminance: {"illuminance", "mlx"},
}

// Valid reports whether the channel is a known, registered channel.
func (c Channel) Valid() bool {
	return c >= 0 && c < channelCount
}

// Name returns the channel's short name, or "unknown" for out-of-range
// channels.
func (c Channel) Name() string {
	if !c.Valid() {
		return "unknown"
	}
	return registry[c].name
}

// Unit returns the channel's unit string.
func (c Channel) Unit() string {
	if !c.Valid() {
		return ""
	}
	return registry[c].unit
}

// Index returns the channel's slot in the value array.
func (c Channel) Index() int {
	return int(c)
}

// Active returns all registered channels in slot order.
func Active() []Channel {
	out := make([]Channel, channelCount)
	for i := range out {
		out[i] = Channel(i)
	}
	return out
}

// Value extracts this channel's reading from a sample. The second return
// is false when the channel did not report.
func (c Channel) Value(s types.RawSample) (int32, bool) {
	if !c.Valid() {
		return 0, false
	}
	v := s.Values[c]
	if v == types.SentinelNoReading {
		return 0, false
	}
	return v, true
}
