// Package config loads the optional feeds configuration file.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// FlightFeeds lists explicit aircraft feed sources. When any are present the
// flight adapter prefers them over the fallback aggregator.
type FlightFeeds struct {
	URLs  []string `yaml:"urls" validate:"dive,url"`
	Files []string `yaml:"files"`
}

// ShippingFeed points at a live vessel feed; empty means demo mode.
type ShippingFeed struct {
	URL string `yaml:"url" validate:"omitempty,url"`
}

// Feeds is the feeds configuration document.
type Feeds struct {
	Flight   FlightFeeds  `yaml:"flight"`
	Shipping ShippingFeed `yaml:"shipping"`
}

// LoadFeeds reads and validates a feeds YAML file. A missing path returns an
// empty document so the gateway can run entirely on defaults.
func LoadFeeds(path string) (Feeds, error) {
	var feeds Feeds
	if path == "" {
		return feeds, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return feeds, fmt.Errorf("read feeds file: %w", err)
	}
	if err := yaml.Unmarshal(data, &feeds); err != nil {
		return feeds, fmt.Errorf("parse feeds file: %w", err)
	}
	v := validator.New()
	if err := v.Struct(feeds); err != nil {
		return feeds, fmt.Errorf("validate feeds file: %w", err)
	}
	return feeds, nil
}
