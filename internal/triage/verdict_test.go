package triage

import "testing"

func TestHasTerminalToken(t *testing.T) {
	tests := []struct {
		content string
		want    bool
	}{
		{"clear overflow, 1337", true},
		{"1007", true},
		{"need more context 7331", true},
		{"7331 3713", true},
		{"the code looks fine", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := hasTerminalToken(tt.content); got != tt.want {
			t.Errorf("hasTerminalToken(%q) = %v, want %v", tt.content, got, tt.want)
		}
	}
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name         string
		content      string
		status       Status
		likelyBenign bool
	}{
		{"confirmed", "attacker controls len, 1337", StatusConfirmed, false},
		{"rejected", "bounds checked above, 1007", StatusRejected, false},
		{"confirmed wins over rejected", "1007 but actually 1337", StatusConfirmed, false},
		{"more data", "need the allocator, 7331", StatusInsufficientData, false},
		{"more data, likely benign", "7331 3713", StatusInsufficientData, true},
		{"no token", "inconclusive text", StatusInsufficientData, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := parseVerdict(tt.content)
			if v.Status != tt.status {
				t.Errorf("Status = %q, want %q", v.Status, tt.status)
			}
			if v.LikelyBenign != tt.likelyBenign {
				t.Errorf("LikelyBenign = %v, want %v", v.LikelyBenign, tt.likelyBenign)
			}
			if v.Rationale != tt.content {
				t.Errorf("Rationale = %q, want the full reply", v.Rationale)
			}
		})
	}
}
