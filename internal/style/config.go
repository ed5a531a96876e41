package style

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config maps the attribute columns of the boundary datasets onto the
// region records. The defaults follow the Natural Earth column names.
type Config struct {
	// Admin0 describes the country-level attribute table
	Admin0 Admin0Fields `yaml:"admin0"`
	// Admin1 describes the subdivision-level attribute table
	Admin1 Admin1Fields `yaml:"admin1"`
	// FallbackClasses are feature classes whose subdivision name is
	// replaced by the owning country name
	FallbackClasses []string `yaml:"fallback_classes,omitempty"`
	// DisputedMarkers flag a country as disputed when found in its type or note
	DisputedMarkers []string `yaml:"disputed_markers,omitempty"`
}

// Admin0Fields names the admin0 columns
type Admin0Fields struct {
	Name    string `yaml:"name,omitempty"`
	Code    string `yaml:"code,omitempty"`
	SovName string `yaml:"sov_name,omitempty"`
	SovCode string `yaml:"sov_code,omitempty"`
	Type    string `yaml:"type,omitempty"`
	Note    string `yaml:"note,omitempty"`
}

// Columns lists the admin0 columns in read order
func (f Admin0Fields) Columns() []string {
	return []string{f.Name, f.Code, f.SovName, f.SovCode, f.Type, f.Note}
}

// Admin1Fields names the admin1 columns
type Admin1Fields struct {
	Name         string `yaml:"name,omitempty"`
	Admin0Code   string `yaml:"admin0_code,omitempty"`
	SovCode      string `yaml:"sov_code,omitempty"`
	FeatureClass string `yaml:"feature_class,omitempty"`
	Admin        string `yaml:"admin,omitempty"`
}

// Columns lists the admin1 columns in read order
func (f Admin1Fields) Columns() []string {
	return []string{f.Name, f.Admin0Code, f.SovCode, f.FeatureClass, f.Admin}
}

// DefaultConfig returns the Natural Earth mapping
func DefaultConfig() *Config {
	return &Config{
		Admin0: Admin0Fields{
			Name:    "name",
			Code:    "adm0_a3",
			SovName: "sovereignt",
			SovCode: "sov_a3",
			Type:    "type",
			Note:    "note_adm0",
		},
		Admin1: Admin1Fields{
			Name:         "name",
			Admin0Code:   "sr_adm0_a3",
			SovCode:      "sr_sov_a3",
			FeatureClass: "featurecla",
			Admin:        "admin",
		},
		FallbackClasses: []string{"aggregation", "minor island", "remainder"},
		DisputedMarkers: []string{"Disputed"},
	}
}

// LoadConfig loads a field mapping from a YAML file. Keys left out of the
// file keep their default.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read style file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses a YAML field mapping over the defaults
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse style YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every column is named
func (c *Config) Validate() error {
	for _, col := range c.Admin0.Columns() {
		if col == "" {
			return fmt.Errorf("admin0 field mapping has an empty column name")
		}
	}
	for _, col := range c.Admin1.Columns() {
		if col == "" {
			return fmt.Errorf("admin1 field mapping has an empty column name")
		}
	}
	return nil
}

// IsFallbackClass reports whether a feature class takes the country name
func (c *Config) IsFallbackClass(featureClass string) bool {
	return containsAny(featureClass, c.FallbackClasses)
}

// IsDisputed reports whether a country type or note marks it as disputed
func (c *Config) IsDisputed(values ...string) bool {
	for _, v := range values {
		if containsAny(v, c.DisputedMarkers) {
			return true
		}
	}
	return false
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
