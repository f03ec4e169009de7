package knowledge

import "strings"

// Inclusion levels for required components.
const (
	IncludeAlways    = "always"
	IncludeTypically = "typically"
	IncludeIfNeeded  = "if_needed"
)

// Component is one piece of work a job type is expected to carry.
// CoveredBy keywords suppress the suggestion when the current scope
// already mentions one of them.
type Component struct {
	Name           string   `json:"name"`
	Inclusion      string   `json:"inclusion"`
	DefaultInclude bool     `json:"default_include"`
	CoveredBy      []string `json:"covered_by,omitempty"`
}

// JobTypeKnowledge is hand-authored domain data for one job type. It
// gives sensible behavior before any learning data accumulates and is
// ranked below learned suggestions when merged.
type JobTypeKnowledge struct {
	JobType            string      `json:"job_type"`
	RequiredComponents []Component `json:"required_components"`
	DefaultScope       []string    `json:"default_scope"`
	CommonOversights   []string    `json:"common_oversights"`
	PrepItems          []string    `json:"prep_items"`
	CompletionItems    []string    `json:"completion_items"`
}

// Normalize lowercases and collapses spaces/underscores to hyphens, so
// "Toilet Install" and "Toilet-Install" both resolve to "toilet-install".
func Normalize(jobType string) string {
	s := strings.ToLower(strings.TrimSpace(jobType))
	s = strings.ReplaceAll(s, "_", "-")
	s = strings.Join(strings.Fields(s), "-")
	return s
}

// Lookup resolves a job type id against the static table: exact match
// first, then normalized match, then substring match.
func Lookup(jobType string) *JobTypeKnowledge {
	if jobType == "" {
		return nil
	}
	if k, ok := table[jobType]; ok {
		return k
	}
	norm := Normalize(jobType)
	if k, ok := table[norm]; ok {
		return k
	}
	for key, k := range table {
		if strings.Contains(norm, key) || strings.Contains(key, norm) {
			return k
		}
	}
	return nil
}

var table = map[string]*JobTypeKnowledge{
	"toilet-install": {
		JobType: "toilet-install",
		RequiredComponents: []Component{
			{Name: "Remove and dispose of existing toilet", Inclusion: IncludeAlways, DefaultInclude: true, CoveredBy: []string{"remove", "removal", "dispose"}},
			{Name: "Install new wax ring and closet bolts", Inclusion: IncludeAlways, DefaultInclude: true, CoveredBy: []string{"wax ring", "closet bolt"}},
			{Name: "Replace supply line and shutoff valve", Inclusion: IncludeTypically, DefaultInclude: true, CoveredBy: []string{"supply line", "shutoff", "shut-off"}},
			{Name: "Repair subfloor at flange", Inclusion: IncludeIfNeeded, DefaultInclude: false, CoveredBy: []string{"subfloor", "flange repair"}},
		},
		DefaultScope: []string{
			"Remove and dispose of existing toilet",
			"Set new toilet with new wax ring and closet bolts",
			"Connect new supply line, test for leaks",
			"Caulk base and verify flush performance",
		},
		CommonOversights: []string{
			"Corroded closet flange discovered at removal",
			"Shutoff valve will not fully close",
		},
		PrepItems:       []string{"Protect flooring along the carry path"},
		CompletionItems: []string{"Haul away old fixture", "Wipe down and final walkthrough"},
	},
	"water-heater-install": {
		JobType: "water-heater-install",
		RequiredComponents: []Component{
			{Name: "Drain and remove existing water heater", Inclusion: IncludeAlways, DefaultInclude: true, CoveredBy: []string{"remove", "removal", "drain"}},
			{Name: "Install expansion tank", Inclusion: IncludeTypically, DefaultInclude: true, CoveredBy: []string{"expansion tank"}},
			{Name: "Install new temperature and pressure relief valve with discharge pipe", Inclusion: IncludeAlways, DefaultInclude: true, CoveredBy: []string{"t&p", "relief valve", "discharge"}},
			{Name: "Install seismic straps", Inclusion: IncludeIfNeeded, DefaultInclude: false, CoveredBy: []string{"seismic", "strap"}},
			{Name: "Upgrade gas flex connector and sediment trap", Inclusion: IncludeIfNeeded, DefaultInclude: false, CoveredBy: []string{"gas flex", "sediment trap"}},
		},
		DefaultScope: []string{
			"Drain, disconnect and remove existing water heater",
			"Set and connect new water heater",
			"Install new T&P relief valve and discharge pipe",
			"Fill, purge air and verify operation",
		},
		CommonOversights: []string{
			"No drain pan under existing unit",
			"Venting not to current code",
		},
		PrepItems:       []string{"Shut off water and fuel supply", "Clear access to the unit"},
		CompletionItems: []string{"Haul away old unit", "Set thermostat and review operation with owner"},
	},
	"bathroom-remodel": {
		JobType: "bathroom-remodel",
		RequiredComponents: []Component{
			{Name: "Demolition and debris removal", Inclusion: IncludeAlways, DefaultInclude: true, CoveredBy: []string{"demo", "demolition", "debris"}},
			{Name: "Rough plumbing relocation", Inclusion: IncludeIfNeeded, DefaultInclude: false, CoveredBy: []string{"rough plumbing", "relocat"}},
			{Name: "Waterproofing membrane at wet areas", Inclusion: IncludeAlways, DefaultInclude: true, CoveredBy: []string{"waterproof", "membrane"}},
			{Name: "Exhaust fan replacement", Inclusion: IncludeTypically, DefaultInclude: true, CoveredBy: []string{"exhaust", "fan"}},
			{Name: "GFCI outlet upgrades", Inclusion: IncludeTypically, DefaultInclude: true, CoveredBy: []string{"gfci", "outlet"}},
		},
		DefaultScope: []string{
			"Demolition of existing finishes, fixtures hauled away",
			"Install waterproofing membrane at tub/shower surround",
			"Set tile at floors and wet walls",
			"Install vanity, toilet and trim fixtures",
			"Paint walls and ceiling",
		},
		CommonOversights: []string{
			"Hidden water damage behind tub surround",
			"Out-of-level floors requiring self-leveler",
		},
		PrepItems:       []string{"Dust barriers at doorway", "Floor protection through the house"},
		CompletionItems: []string{"Caulk and seal all wet joints", "Final clean and walkthrough"},
	},
	"kitchen-remodel": {
		JobType: "kitchen-remodel",
		RequiredComponents: []Component{
			{Name: "Demolition and debris removal", Inclusion: IncludeAlways, DefaultInclude: true, CoveredBy: []string{"demo", "demolition", "debris"}},
			{Name: "Cabinet installation", Inclusion: IncludeAlways, DefaultInclude: true, CoveredBy: []string{"cabinet"}},
			{Name: "Countertop template and install", Inclusion: IncludeAlways, DefaultInclude: true, CoveredBy: []string{"countertop", "counter top"}},
			{Name: "Appliance hookup", Inclusion: IncludeTypically, DefaultInclude: true, CoveredBy: []string{"appliance"}},
			{Name: "Electrical panel capacity check", Inclusion: IncludeIfNeeded, DefaultInclude: false, CoveredBy: []string{"panel", "service upgrade"}},
		},
		DefaultScope: []string{
			"Demolition of existing cabinets and counters",
			"Install new cabinets per layout",
			"Template, fabricate and install countertops",
			"Install backsplash tile",
			"Reconnect sink, disposal and appliances",
		},
		CommonOversights: []string{
			"Walls out of plumb behind old cabinets",
			"Undersized circuits for new appliances",
		},
		PrepItems:       []string{"Set up temporary kitchen staging area", "Protect flooring"},
		CompletionItems: []string{"Adjust doors and drawers", "Final clean and walkthrough"},
	},
	"roof-replacement": {
		JobType: "roof-replacement",
		RequiredComponents: []Component{
			{Name: "Tear off existing roofing to deck", Inclusion: IncludeAlways, DefaultInclude: true, CoveredBy: []string{"tear off", "tear-off", "strip"}},
			{Name: "Replace damaged decking", Inclusion: IncludeIfNeeded, DefaultInclude: false, CoveredBy: []string{"decking", "sheathing"}},
			{Name: "Ice and water shield at eaves and valleys", Inclusion: IncludeTypically, DefaultInclude: true, CoveredBy: []string{"ice and water", "ice & water"}},
			{Name: "New drip edge and flashing", Inclusion: IncludeAlways, DefaultInclude: true, CoveredBy: []string{"drip edge", "flashing"}},
			{Name: "Ridge vent installation", Inclusion: IncludeTypically, DefaultInclude: true, CoveredBy: []string{"ridge vent", "ventilation"}},
		},
		DefaultScope: []string{
			"Tear off existing roofing down to the deck",
			"Install synthetic underlayment",
			"Install new architectural shingles",
			"Replace all pipe boots and flashings",
			"Magnetic sweep of yard and haul away debris",
		},
		CommonOversights: []string{
			"Rotten decking found after tear off",
			"Inadequate attic ventilation",
		},
		PrepItems:       []string{"Protect landscaping and siding", "Position dumpster"},
		CompletionItems: []string{"Final magnetic nail sweep", "Registration of manufacturer warranty"},
	},
	"deck-build": {
		JobType: "deck-build",
		RequiredComponents: []Component{
			{Name: "Footing excavation and concrete", Inclusion: IncludeAlways, DefaultInclude: true, CoveredBy: []string{"footing", "concrete"}},
			{Name: "Ledger board flashing", Inclusion: IncludeAlways, DefaultInclude: true, CoveredBy: []string{"ledger", "flashing"}},
			{Name: "Guardrail and baluster installation", Inclusion: IncludeTypically, DefaultInclude: true, CoveredBy: []string{"guardrail", "railing", "baluster"}},
			{Name: "Stair stringers and treads", Inclusion: IncludeIfNeeded, DefaultInclude: false, CoveredBy: []string{"stair", "stringer"}},
		},
		DefaultScope: []string{
			"Lay out and pour concrete footings",
			"Frame deck structure with treated lumber",
			"Install decking boards",
			"Install railing system",
		},
		CommonOversights: []string{
			"Permit and inspection lead times",
			"Utility lines in the dig path",
		},
		PrepItems:       []string{"Call utility locate before digging"},
		CompletionItems: []string{"Haul away construction debris", "Final walkthrough"},
	},
}
