package analysis

import (
	"encoding/json"
	"strings"
)

type Decision string

const (
	DecisionAllow   Decision = "ALLOW"
	DecisionWarn    Decision = "WARN"
	DecisionBlock   Decision = "BLOCK"
	DecisionReview  Decision = "REVIEW"
	DecisionUnknown Decision = "UNKNOWN"
)

const UnknownRisk = "Unknown"

// ParseDecision maps free text onto the known decisions; anything else is UNKNOWN.
func ParseDecision(s string) Decision {
	switch d := Decision(strings.ToUpper(strings.TrimSpace(s))); d {
	case DecisionAllow, DecisionWarn, DecisionBlock, DecisionReview:
		return d
	default:
		return DecisionUnknown
	}
}

// Result is the normalized verdict of one analysis.
type Result struct {
	Decision    Decision `json:"decision"`
	OverallRisk string   `json:"overallRisk"`
	Reason      string   `json:"reason,omitempty"`
	Summary     string   `json:"summary,omitempty"`
	Findings    int      `json:"findings"`
}

type analyzeResponse struct {
	Result json.RawMessage `json:"result"`
}

// normalize never fails on missing or oddly typed fields; only a body that is
// not a JSON object is rejected.
func normalize(body []byte) (*Result, error) {
	var resp analyzeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	out := &Result{Decision: DecisionUnknown, OverallRisk: UnknownRisk}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(resp.Result, &fields); err != nil || fields == nil {
		return out, nil
	}

	out.Decision = ParseDecision(stringField(fields["decision"]))
	if risk := strings.TrimSpace(stringField(fields["overallRisk"])); risk != "" {
		out.OverallRisk = risk
	}
	out.Reason = stringField(fields["reason"])
	out.Summary = stringField(fields["summary"])
	out.Findings = countField(fields["findings"])
	return out, nil
}

// stringField returns raw as a string, or "" when it holds anything else.
func stringField(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

// countField accepts a findings list or a bare count.
func countField(raw json.RawMessage) int {
	var list []json.RawMessage
	if json.Unmarshal(raw, &list) == nil {
		return len(list)
	}
	var n int
	if json.Unmarshal(raw, &n) == nil && n > 0 {
		return n
	}
	return 0
}
