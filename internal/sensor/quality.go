package sensor

// QualityLevel rates a reading against comfort thresholds.
type QualityLevel uint8

const (
	QualityExcellent QualityLevel = iota
	QualityGood
	QualityPoor
	QualityBad
)

// String returns the display label for the quality level.
func (q QualityLevel) String() string {
	switch q {
	case QualityExcellent:
		return "Excellent"
	case QualityGood:
		return "Good"
	case QualityPoor:
		return "Poor"
	default:
		return "Bad"
	}
}

// qualityBand holds inclusive milli-unit ranges, tightest first.
type qualityBand struct {
	lo, hi int32
}

// Comfort thresholds per channel, in the channel's storage units.
// Temperature: excellent 20-24C, good 18-26C, poor 15-28C.
// Humidity: excellent 40-60%, good 30-70%, poor 20-80%.
var qualityBands = map[Channel][3]qualityBand{
	ChannelTemperature: {
		{20_000, 24_000},
		{18_000, 26_000},
		{15_000, 28_000},
	},
	ChannelHumidity: {
		{40_000, 60_000},
		{30_000, 70_000},
		{20_000, 80_000},
	},
}

// Assess rates a reading for the given channel. The second return is false
// for channels without comfort thresholds.
func Assess(c Channel, value int32) (QualityLevel, bool) {
	bands, ok := qualityBands[c]
	if !ok {
		return QualityGood, false
	}

	for i, band := range bands {
		if value >= band.lo && value <= band.hi {
			return QualityLevel(i), true
		}
	}
	return QualityBad, true
}
