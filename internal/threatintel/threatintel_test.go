package threatintel

import "testing"

func TestIsConfirmedSanction(t *testing.T) {
	cases := []struct {
		category   string
		confidence Confidence
		want       bool
	}{
		{"OFAC_SDN", ConfidenceConfirmed, true},
		{"OFAC_SDN", ConfidenceTentative, false},
		{"scam_report", ConfidenceConfirmed, false},
		{"", ConfidenceConfirmed, false},
	}
	for _, tc := range cases {
		r := &Record{Category: tc.category, Confidence: tc.confidence}
		if got := r.IsConfirmedSanction(); got != tc.want {
			t.Errorf("category=%q confidence=%q: got %v, want %v",
				tc.category, tc.confidence, got, tc.want)
		}
	}
}

// Every category in the shared list must satisfy IsConfirmedSanction; the
// postgres SignalsFor query binds the same list, so this pins the two
// stores to one source of truth.
func TestSanctionCategoriesAgree(t *testing.T) {
	for _, c := range sanctionCategories {
		r := &Record{Category: c, Confidence: ConfidenceConfirmed}
		if !r.IsConfirmedSanction() {
			t.Errorf("category %q in sanctionCategories but not confirmed sanction", c)
		}
	}
}
