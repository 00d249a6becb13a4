package capability

import "testing"

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		list     []string
		target   string
		expected int
	}{
		{name: "exact_case_insensitive", list: []string{"Fade", "Chase"}, target: "fade", expected: 0},
		{name: "substring", list: []string{"Strobe Mega", "Fade"}, target: "strobe", expected: 0},
		{name: "exact_beats_earlier_substring", list: []string{"Fire 2012", "Fire"}, target: "fire", expected: 1},
		{name: "unknown_falls_back", list: []string{"A", "B"}, target: "zzz", expected: 0},
		{name: "empty_list", list: nil, target: "fade", expected: 0},
		{name: "empty_target", list: []string{"A", "B"}, target: "", expected: 0},
		{name: "whitespace_target", list: []string{"A", "B"}, target: "   ", expected: 0},
		{name: "trims_entries", list: []string{"Solid", "  Chase  "}, target: "CHASE ", expected: 1},
		{name: "first_substring_wins", list: []string{"Solid", "Chase 2", "Chase 3"}, target: "chase", expected: 1},
		{name: "scenario_chase", list: []string{"Solid", "Fade", "Chase"}, target: "chase", expected: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.list, tt.target)
			if got != tt.expected {
				t.Errorf("Resolve(%q, %q) = %d, want %d", tt.list, tt.target, got, tt.expected)
			}
		})
	}
}

func TestResolve_InRange(t *testing.T) {
	lists := [][]string{
		{"Solid"},
		{"Solid", "Blink", "Breathe", "Wipe"},
		{"x", "xx", "xxx"},
	}
	targets := []string{"", "x", "XX", "wipe", "nothing", "s", " blink "}

	for _, list := range lists {
		for _, target := range targets {
			first := Resolve(list, target)
			if first < 0 || first >= len(list) {
				t.Errorf("Resolve(%q, %q) = %d out of range", list, target, first)
			}
			if again := Resolve(list, target); again != first {
				t.Errorf("Resolve(%q, %q) not deterministic: %d then %d", list, target, first, again)
			}
		}
	}
}

func TestSnapshot(t *testing.T) {
	s := Snapshot{
		Effects:  []string{"Solid", "Fade", "Chase"},
		Palettes: []string{"Default", "Party", "Ocean"},
	}
	if s.Empty() {
		t.Error("Empty() = true for populated snapshot")
	}
	if got := s.Effect("chase"); got != 2 {
		t.Errorf("Effect(chase) = %d, want 2", got)
	}
	if got := s.Palette("ocean"); got != 2 {
		t.Errorf("Palette(ocean) = %d, want 2", got)
	}
	if !(Snapshot{}).Empty() {
		t.Error("Empty() = false for zero snapshot")
	}
}
