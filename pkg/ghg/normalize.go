package ghg

import "strings"

// frequencyMap groups the spellings users and backends use for a reporting
// frequency under the canonical name.
var frequencyMap = map[string][]string{
	"Daily":     {"daily", "day", "d"},
	"Weekly":    {"weekly", "week", "w"},
	"Monthly":   {"monthly", "month", "mo", "m"},
	"Quarterly": {"quarterly", "quarter", "q"},
	"Annually":  {"annually", "annual", "yearly", "year", "y"},
	"One-off":   {"one-off", "oneoff", "once"},
}

var unitMap = map[string][]string{
	"kg":     {"kg", "kgs", "kilogram", "kilograms"},
	"t":      {"t", "tonne", "tonnes", "ton", "tons"},
	"litres": {"l", "litre", "litres", "liter", "liters"},
	"m3":     {"m3", "m^3", "cubic metre", "cubic metres"},
	"kWh":    {"kwh", "kilowatt hour", "kilowatt hours"},
	"MWh":    {"mwh", "megawatt hour", "megawatt hours"},
	"km":     {"km", "kilometre", "kilometres", "kilometer", "kilometers"},
	"GBP":    {"gbp", "£"},
	"USD":    {"usd", "$"},
}

var (
	frequencyLookup map[string]string
	unitLookup      map[string]string
)

func init() {
	frequencyLookup = invert(frequencyMap)
	unitLookup = invert(unitMap)
}

func invert(m map[string][]string) map[string]string {
	out := make(map[string]string)
	for canonical, raws := range m {
		for _, raw := range raws {
			out[raw] = canonical
		}
	}
	return out
}

// NormalizeFrequency maps a frequency spelling to its canonical form.
// Unknown values are returned trimmed and unchanged.
func NormalizeFrequency(s string) string {
	s = strings.TrimSpace(s)
	if canonical, ok := frequencyLookup[strings.ToLower(s)]; ok {
		return canonical
	}
	return s
}

// NormalizeUnit maps a unit spelling to its canonical form.
func NormalizeUnit(s string) string {
	s = strings.TrimSpace(s)
	if canonical, ok := unitLookup[strings.ToLower(s)]; ok {
		return canonical
	}
	return s
}
