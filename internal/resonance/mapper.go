package resonance

import (
	"sort"

	"resonance/internal/emotion"
)

// Mode is the interaction mode chosen for a touch.
type Mode string

const (
	Creation    Mode = "creation"
	Alteration  Mode = "alteration"
	Destruction Mode = "destruction"
	Blessing    Mode = "blessing"
)

// Modes lists every mode.
func Modes() []Mode {
	return []Mode{Creation, Alteration, Destruction, Blessing}
}

// Form tags.
const (
	FormGrowing     = "growing"
	FormGeometric   = "geometric"
	FormStructured  = "structured"
	FormFlowing     = "flowing"
	FormRadiant     = "radiant"
	FormFractured   = "fractured"
	FormCrystalline = "crystalline"
	FormOrganic     = "organic"
	FormSpiral      = "spiral"
	FormDissolving  = "dissolving"
)

// Action is the resonance derived for one sample.
type Action struct {
	Mode            Mode     `json:"mode"`
	Form            string   `json:"form"`
	Intensity       float64  `json:"intensity"`
	Characteristics []string `json:"characteristics"`
}

// Predicate selects the states and pressures a rule applies to. An empty
// Secondary matches any secondary emotion; Bands must be non-empty.
type Predicate struct {
	Primary   emotion.Emotion
	Secondary emotion.Emotion
	Bands     []Band
}

// Specificity ranks predicates: naming two emotions beats naming one.
func (p Predicate) Specificity() int {
	if p.Secondary != "" {
		return 2
	}
	return 1
}

// Matches reports whether the predicate holds for state in band.
func (p Predicate) Matches(state emotion.State, band Band) bool {
	if state.Primary != p.Primary {
		return false
	}
	if p.Secondary != "" && state.Secondary != p.Secondary {
		return false
	}
	for _, b := range p.Bands {
		if b == band {
			return true
		}
	}
	return false
}

// Rule pairs a predicate with the action template it yields.
type Rule struct {
	When            Predicate
	Mode            Mode
	Form            string
	Characteristics []string
}

// Mapper evaluates an ordered rule table. It holds no mutable state.
type Mapper struct {
	rules []Rule
}

// NewMapper orders rules by descending specificity, keeping declaration
// order among equals. With no rules the default table is used.
func NewMapper(rules ...Rule) *Mapper {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	ordered := make([]Rule, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].When.Specificity() > ordered[j].When.Specificity()
	})
	return &Mapper{rules: ordered}
}

// Rules returns the rules in evaluation order.
func (m *Mapper) Rules() []Rule {
	out := make([]Rule, len(m.rules))
	copy(out, m.rules)
	return out
}

// Fallback is the action returned when no rule matches.
func Fallback(intensity float64) Action {
	return Action{
		Mode:            Alteration,
		Form:            FormStructured,
		Intensity:       intensity,
		Characteristics: []string{},
	}
}

// Map returns the action of the first matching rule, or Fallback.
func (m *Mapper) Map(state emotion.State, pressure float64) Action {
	pressure = emotion.Clamp01(pressure)
	band := BandFor(pressure)
	intensity := emotion.Clamp01((state.Intensity + pressure) / 2)

	for _, r := range m.rules {
		if !r.When.Matches(state, band) {
			continue
		}
		chars := make([]string, len(r.Characteristics))
		copy(chars, r.Characteristics)
		return Action{
			Mode:            r.Mode,
			Form:            r.Form,
			Intensity:       intensity,
			Characteristics: chars,
		}
	}
	return Fallback(intensity)
}
