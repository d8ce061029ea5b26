package core

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultConfigValidates(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() = %v", err)
	}
}

func TestConfigValidateRejectsInconsistency(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bands not decreasing", func(c *Config) { c.Phase.PreHandoverMinDeg = 25.0 }},
		{"hysteresis wider than band", func(c *Config) { c.Phase.HysteresisDeg = 6.0 }},
		{"negative event hysteresis", func(c *Config) { c.A4.HysteresisDB = -1.0 }},
		{"negative time to trigger", func(c *Config) { c.D2.TimeToTrigger = -time.Second }},
		{"a5 thresholds inverted", func(c *Config) { c.A5.ServingThresholdDBm = -100.0 }},
		{"zero predictor delta", func(c *Config) { c.Predictor.Delta = 0 }},
		{"zero tolerance", func(c *Config) { c.Predictor.ToleranceMs = 0 }},
		{"zero iterations", func(c *Config) { c.Predictor.MaxIterations = 0 }},
		{"negative safety margin", func(c *Config) { c.Coordinator.SafetyMargin = -time.Second }},
		{"confidence floor out of range", func(c *Config) { c.Coordinator.MinConfidence = 1.5 }},
		{"zero observation interval", func(c *Config) { c.ObservationInterval = 0 }},
		{"gap below interval", func(c *Config) { c.MaxObservationGap = 500 * time.Millisecond }},
	}
	for _, tc := range cases {
		cfg := DefaultConfig()
		tc.mutate(&cfg)
		err := cfg.Validate()
		if err == nil {
			t.Fatalf("%s: Validate() accepted an invalid config", tc.name)
		}
		if !errors.Is(err, ErrConfigurationInvalid) {
			t.Fatalf("%s: err = %v, want ErrConfigurationInvalid", tc.name, err)
		}
	}
}
