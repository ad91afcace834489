package pattern

import "fmt"

// Config holds the Doji gate thresholds. Percent values are on a 0-100 scale.
type Config struct {
	DojiThresholdPct   float64 `yaml:"doji_threshold_pct"`   // max body as % of range
	MinBodyPosition    float64 `yaml:"min_body_position"`    // body bottom as % of range from the low
	MaxBodyPosition    float64 `yaml:"max_body_position"`
	MinShadowPct       float64 `yaml:"min_shadow_pct"`       // each shadow, % of range
	VolumeRatio        float64 `yaml:"volume_ratio"`         // max current/previous volume
	ShadowThresholdPct float64 `yaml:"shadow_threshold_pct"` // previous candle
	BodyThresholdPct   float64 `yaml:"body_threshold_pct"`   // previous candle
}

// DefaultConfig returns the default gate thresholds
func DefaultConfig() Config {
	return Config{
		DojiThresholdPct:   10,
		MinBodyPosition:    35,
		MaxBodyPosition:    65,
		MinShadowPct:       5,
		VolumeRatio:        0.9,
		ShadowThresholdPct: 65,
		BodyThresholdPct:   70,
	}
}

// Validate checks if the thresholds are consistent
func (c Config) Validate() error {
	pcts := []struct {
		name string
		v    float64
	}{
		{"doji_threshold_pct", c.DojiThresholdPct},
		{"min_body_position", c.MinBodyPosition},
		{"max_body_position", c.MaxBodyPosition},
		{"min_shadow_pct", c.MinShadowPct},
		{"shadow_threshold_pct", c.ShadowThresholdPct},
		{"body_threshold_pct", c.BodyThresholdPct},
	}
	for _, p := range pcts {
		if p.v < 0 || p.v > 100 {
			return fmt.Errorf("%s must be within [0, 100], got %g", p.name, p.v)
		}
	}
	if c.MinBodyPosition > c.MaxBodyPosition {
		return fmt.Errorf("min_body_position (%g) must not exceed max_body_position (%g)",
			c.MinBodyPosition, c.MaxBodyPosition)
	}
	if c.VolumeRatio <= 0 {
		return fmt.Errorf("volume_ratio must be positive, got %g", c.VolumeRatio)
	}
	return nil
}
