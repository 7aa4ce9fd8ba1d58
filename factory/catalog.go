/*
Package factory converts class option definitions (JSON or YAML) into
scheduling.ClassOption values.

PURPOSE:
  Lets the school's catalog of purchasable options live in a file that
  operators edit without a code change. The server seeds the catalog on
  start-up; options already present and referenced by sessions keep their
  stored terms.

SCHEMA (YAML shown, JSON accepted):
  class_options:
    - id: fixed-12-standard
      name: Weekly course (12 classes)
      class_mode: fixed-12
      tuition_fee: "4800.00"
      class_limit: 12
      effective_start_date: 2025-01-01
    - id: camp-5-summer
      name: Summer camp (5 days)
      class_mode: camp-5
      tuition_fee: "3500"
      effective_end_date: 2025-08-31

DEFAULTS:
  - class_limit omitted: the mode default (12 for fixed-12, N for camp-N,
    unlimited for package-open)
  - tuition_fee omitted: 0

USAGE:
  f := factory.NewOptionFactory()
  opts, err := f.LoadCatalog("class_options.yaml")

  // Presets
  opt, err := f.ParseOption(factory.Fixed12JSON("fixed-12", "Weekly course", "4800"))
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/kdl/schedule-engine/scheduling"
)

// =============================================================================
// SCHEMA TYPES
// =============================================================================

// ClassOptionJSON is the file representation of a class option.
type ClassOptionJSON struct {
	ID                 string `json:"id" yaml:"id"`
	Name               string `json:"name" yaml:"name"`
	ClassMode          string `json:"class_mode" yaml:"class_mode"`
	TuitionFee         string `json:"tuition_fee,omitempty" yaml:"tuition_fee,omitempty"`
	ClassLimit         int    `json:"class_limit,omitempty" yaml:"class_limit,omitempty"`
	EffectiveStartDate string `json:"effective_start_date,omitempty" yaml:"effective_start_date,omitempty"`
	EffectiveEndDate   string `json:"effective_end_date,omitempty" yaml:"effective_end_date,omitempty"`
}

// CatalogJSON is a list of class options.
type CatalogJSON struct {
	ClassOptions []ClassOptionJSON `json:"class_options" yaml:"class_options"`
}

// =============================================================================
// OPTION FACTORY
// =============================================================================

// OptionFactory converts catalog definitions to class options.
type OptionFactory struct{}

// NewOptionFactory creates a new option factory.
func NewOptionFactory() *OptionFactory {
	return &OptionFactory{}
}

// ParseOption parses a single JSON class option.
func (f *OptionFactory) ParseOption(jsonStr string) (scheduling.ClassOption, error) {
	var oj ClassOptionJSON
	if err := json.Unmarshal([]byte(jsonStr), &oj); err != nil {
		return scheduling.ClassOption{}, fmt.Errorf("failed to parse class option JSON: %w", err)
	}
	return f.FromJSON(oj)
}

// ParseCatalog parses a catalog document. YAML is a superset of JSON, so
// both formats go through the YAML decoder.
func (f *OptionFactory) ParseCatalog(data []byte) ([]scheduling.ClassOption, error) {
	var cj CatalogJSON
	if err := yaml.Unmarshal(data, &cj); err != nil {
		return nil, fmt.Errorf("failed to parse class option catalog: %w", err)
	}

	seen := make(map[string]bool, len(cj.ClassOptions))
	out := make([]scheduling.ClassOption, 0, len(cj.ClassOptions))
	for i, oj := range cj.ClassOptions {
		if oj.ID == "" {
			return nil, fmt.Errorf("class option %d: id is required", i)
		}
		if seen[oj.ID] {
			return nil, fmt.Errorf("class option %s: duplicate id", oj.ID)
		}
		seen[oj.ID] = true

		opt, err := f.FromJSON(oj)
		if err != nil {
			return nil, err
		}
		out = append(out, opt)
	}
	return out, nil
}

// LoadCatalog reads and parses a catalog file.
func (f *OptionFactory) LoadCatalog(path string) ([]scheduling.ClassOption, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read class option catalog: %w", err)
	}
	return f.ParseCatalog(data)
}

// FromJSON converts ClassOptionJSON to a ClassOption.
func (f *OptionFactory) FromJSON(oj ClassOptionJSON) (scheduling.ClassOption, error) {
	mode := scheduling.ClassMode(strings.ToLower(strings.TrimSpace(oj.ClassMode)))
	if !mode.Valid() {
		return scheduling.ClassOption{}, fmt.Errorf("class option %s: unknown class mode %q", oj.ID, oj.ClassMode)
	}

	opt := scheduling.ClassOption{
		ID:         scheduling.ClassOptionID(oj.ID),
		Name:       oj.Name,
		Mode:       mode,
		ClassLimit: oj.ClassLimit,
	}
	if opt.ClassLimit == 0 {
		opt.ClassLimit = mode.DefaultClassLimit()
	}

	if oj.TuitionFee != "" {
		fee, err := decimal.NewFromString(oj.TuitionFee)
		if err != nil {
			return scheduling.ClassOption{}, fmt.Errorf("class option %s: invalid tuition_fee: %w", oj.ID, err)
		}
		opt.TuitionFee = fee
	}

	if oj.EffectiveStartDate != "" {
		d, err := scheduling.ParseDate(oj.EffectiveStartDate)
		if err != nil {
			return scheduling.ClassOption{}, fmt.Errorf("class option %s: effective_start_date: %w", oj.ID, err)
		}
		opt.EffectiveStartDate = d
	}
	if oj.EffectiveEndDate != "" {
		d, err := scheduling.ParseDate(oj.EffectiveEndDate)
		if err != nil {
			return scheduling.ClassOption{}, fmt.Errorf("class option %s: effective_end_date: %w", oj.ID, err)
		}
		opt.EffectiveEndDate = &d
	}

	return opt, nil
}

// ToJSON converts a ClassOption to ClassOptionJSON.
func (f *OptionFactory) ToJSON(o scheduling.ClassOption) ClassOptionJSON {
	oj := ClassOptionJSON{
		ID:         string(o.ID),
		Name:       o.Name,
		ClassMode:  string(o.Mode),
		TuitionFee: o.TuitionFee.StringFixed(2),
		ClassLimit: o.ClassLimit,
	}
	if !o.EffectiveStartDate.IsZero() {
		oj.EffectiveStartDate = o.EffectiveStartDate.String()
	}
	if o.EffectiveEndDate != nil {
		oj.EffectiveEndDate = o.EffectiveEndDate.String()
	}
	return oj
}
