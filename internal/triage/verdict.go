package triage

import "strings"

// Status is the outcome of one triaged finding.
type Status string

const (
	StatusConfirmed        Status = "confirmed"
	StatusRejected         Status = "rejected"
	StatusInsufficientData Status = "insufficient_data"
)

// Terminal status tokens the model is instructed to emit. A conversation only
// ends on a text turn carrying at least one of these.
const (
	tokenConfirmed    = "1337"
	tokenRejected     = "1007"
	tokenMoreData     = "7331"
	tokenLikelyBenign = "3713"
)

var terminalTokens = []string{tokenConfirmed, tokenRejected, tokenMoreData, tokenLikelyBenign}

// Verdict is the classification extracted from the model's terminal reply.
type Verdict struct {
	Status Status `json:"status"`

	// LikelyBenign qualifies InsufficientData: the model could not fully
	// validate but leaned towards no real issue.
	LikelyBenign bool `json:"likely_benign,omitempty"`

	// Rationale is the model's terminal reply in full.
	Rationale string `json:"rationale"`
}

// hasTerminalToken reports whether content carries any status token.
func hasTerminalToken(content string) bool {
	for _, token := range terminalTokens {
		if strings.Contains(content, token) {
			return true
		}
	}
	return false
}

// parseVerdict maps a terminal reply onto the verdict taxonomy. The confirmed
// token wins over the rejected one when both appear; anything else is
// insufficient data, qualified as likely benign when that token is present.
func parseVerdict(content string) Verdict {
	v := Verdict{Rationale: content}
	switch {
	case strings.Contains(content, tokenConfirmed):
		v.Status = StatusConfirmed
	case strings.Contains(content, tokenRejected):
		v.Status = StatusRejected
	default:
		v.Status = StatusInsufficientData
		v.LikelyBenign = strings.Contains(content, tokenLikelyBenign)
	}
	return v
}
