package factory

import (
	"encoding/json"

	"github.com/kdl/schedule-engine/scheduling"
)

// =============================================================================
// PRESET CLASS OPTIONS
// =============================================================================

// Fixed12JSON returns JSON for a 12-class weekly course.
func Fixed12JSON(id, name, fee string) string {
	return presetJSON(id, name, scheduling.ModeFixed12, fee, 12)
}

// CampJSON returns JSON for an N-day camp. Only 2 and 5 are valid modes.
func CampJSON(id, name string, days int, fee string) string {
	mode := scheduling.ModeCamp5
	if days == 2 {
		mode = scheduling.ModeCamp2
	}
	return presetJSON(id, name, mode, fee, mode.CampDays())
}

// PackageOpenJSON returns JSON for an open package with no class limit.
func PackageOpenJSON(id, name, fee string) string {
	return presetJSON(id, name, scheduling.ModePackageOpen, fee, 0)
}

func presetJSON(id, name string, mode scheduling.ClassMode, fee string, limit int) string {
	oj := map[string]interface{}{
		"id":          id,
		"name":        name,
		"class_mode":  string(mode),
		"tuition_fee": fee,
	}
	if limit > 0 {
		oj["class_limit"] = limit
	}
	b, _ := json.MarshalIndent(oj, "", "  ")
	return string(b)
}

// DefaultCatalog returns one option per class mode. The server seeds these
// when no catalog file is configured.
func DefaultCatalog() []scheduling.ClassOption {
	f := NewOptionFactory()
	var out []scheduling.ClassOption
	for _, js := range []string{
		Fixed12JSON("fixed-12", "Weekly course (12 classes)", "0"),
		CampJSON("camp-2", "Weekend camp (2 days)", 2, "0"),
		CampJSON("camp-5", "Holiday camp (5 days)", 5, "0"),
		PackageOpenJSON("package-open", "Open package", "0"),
	} {
		opt, err := f.ParseOption(js)
		if err != nil {
			panic(err)
		}
		out = append(out, opt)
	}
	return out
}
