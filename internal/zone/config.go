// Kestrel - Behavioral Video Security Analytics
// Copyright 2026 Kestrel Security
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

package zone

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/kestrelsec/kestrel/internal/logging"
	"github.com/kestrelsec/kestrel/internal/vision"
)

// ZoneConfig is one zone definition as authored by the zone tooling.
// Unknown JSON fields are ignored at this boundary; only the declared
// fields ever reach a Zone.
type ZoneConfig struct {
	Name        string         `json:"name" validate:"required"`
	AccessLevel AccessLevel    `json:"access_level" validate:"required,oneof=public monitored restricted critical"`
	Points      []vision.Point `json:"points" validate:"required"`
}

// SourceConfig holds the zone definitions for one monitored source and the
// resolution they were authored at.
type SourceConfig struct {
	VideoSource    string       `json:"video_source"`
	OriginalWidth  int          `json:"original_width"`
	OriginalHeight int          `json:"original_height"`
	Zones          []ZoneConfig `json:"zones"`
}

// FileConfig maps source IDs to their zone configurations.
type FileConfig map[string]SourceConfig

// Default reference resolution when the authoring tool did not record one.
const (
	DefaultOriginalWidth  = 1280
	DefaultOriginalHeight = 720
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadFile reads a zone configuration file. A missing file is not an error;
// it yields an empty configuration (sources simply run without zones).
func LoadFile(path string) (FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Warn().Str("path", path).Msg("zone config file not found, no zones loaded")
			return FileConfig{}, nil
		}
		return nil, fmt.Errorf("read zone config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a zone configuration document.
func Parse(data []byte) (FileConfig, error) {
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse zone config: %w", err)
	}
	return cfg, nil
}

// Build converts the per-source configuration into an immutable zone Set.
// An invalid zone definition is skipped with a warning rather than failing
// the whole set; a zone with fewer than 3 points is kept but can never
// contain a point.
func (sc SourceConfig) Build(sourceID string) *Set {
	set := &Set{
		OriginalWidth:  sc.OriginalWidth,
		OriginalHeight: sc.OriginalHeight,
	}
	if set.OriginalWidth <= 0 {
		set.OriginalWidth = DefaultOriginalWidth
	}
	if set.OriginalHeight <= 0 {
		set.OriginalHeight = DefaultOriginalHeight
	}

	for _, zc := range sc.Zones {
		if err := validate.Struct(zc); err != nil {
			logging.Warn().
				Err(err).
				Str("source", sourceID).
				Str("zone", zc.Name).
				Msg("skipping invalid zone definition")
			continue
		}
		if len(zc.Points) < 3 {
			logging.Warn().
				Str("source", sourceID).
				Str("zone", zc.Name).
				Int("points", len(zc.Points)).
				Msg("zone has fewer than 3 vertices and will contain no points")
		}
		set.Zones = append(set.Zones, New(zc.Name, zc.AccessLevel, zc.Points))
	}

	if len(set.Zones) > 0 {
		logging.Info().
			Str("source", sourceID).
			Int("zones", len(set.Zones)).
			Int("original_width", set.OriginalWidth).
			Int("original_height", set.OriginalHeight).
			Msg("loaded security zones")
	} else {
		logging.Warn().Str("source", sourceID).Msg("no security zones configured")
	}
	return set
}
