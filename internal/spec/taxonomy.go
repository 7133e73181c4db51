package spec

import (
	"slices"
)

// Soort is the activity type tag.
type Soort string

const (
	MaakBranch                Soort = "Maak branch"
	Download                  Soort = "Download"
	Wijziging                 Soort = "Wijziging"
	Uitwisseling              Soort = "Uitwisseling"
	BijwerkenUitgangssituatie Soort = "Bijwerken uitgangssituatie"
	Ontwerpbesluit            Soort = "Ontwerpbesluit"
	Vaststellingsbesluit      Soort = "Vaststellingsbesluit"
)

// Activity property names.
const (
	PropSoort            = "Soort"
	PropTijdstip         = "Tijdstip"
	PropBeschrijving     = "Beschrijving"
	PropBasis            = "Basis"
	PropBranch           = "Branch"
	PropOntvanger        = "Ontvanger"
	PropBesluit          = "Besluit"
	PropInwerkingtreding = "Inwerkingtreding"
)

// BaseProperties are accepted by every activity.
var BaseProperties = []string{PropSoort, PropTijdstip, PropBeschrijving}

// ActivityType describes one entry of the fixed taxonomy.
type ActivityType struct {
	Soort Soort

	// IsChange marks activities that carry per-branch snapshot
	// descriptions: every property outside BaseProperties and Extra is a
	// branch name.
	IsChange bool

	// Extra lists the variant-specific properties.
	Extra []string
}

// Taxonomy is the fixed set of activity types, in presentation order.
var Taxonomy = []ActivityType{
	{Soort: MaakBranch, IsChange: true, Extra: []string{PropBasis}},
	{Soort: Download, Extra: []string{PropBranch}},
	{Soort: Wijziging, IsChange: true},
	{Soort: Uitwisseling, Extra: []string{PropBranch, PropOntvanger}},
	{Soort: BijwerkenUitgangssituatie, IsChange: true, Extra: []string{PropBasis}},
	{Soort: Ontwerpbesluit, IsChange: true, Extra: []string{PropBesluit}},
	{Soort: Vaststellingsbesluit, IsChange: true, Extra: []string{PropBesluit, PropInwerkingtreding}},
}

// LookupSoort returns the taxonomy entry for s.
func LookupSoort(s string) (ActivityType, bool) {
	for _, t := range Taxonomy {
		if string(t.Soort) == s {
			return t, true
		}
	}
	return ActivityType{}, false
}

// Permits reports whether key is a base or extra property of the type.
func (t ActivityType) Permits(key string) bool {
	return slices.Contains(BaseProperties, key) || slices.Contains(t.Extra, key)
}

// IsBranchKey reports whether key names a branch in an activity of this
// type: only change activities have branches, and never under a property
// name.
func (t ActivityType) IsBranchKey(key string) bool {
	return t.IsChange && !t.Permits(key)
}
