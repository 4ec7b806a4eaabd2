package aiclient

import (
	"encoding/json"
	"fmt"
	"sort"

	"prepmate/pkg/domain"
)

// AnalysisResult is a validated resume analysis. Raw is the upstream body
// verbatim, which is what API callers receive; the extracted fields feed the
// persisted history record.
type AnalysisResult struct {
	Raw         json.RawMessage
	MatchScore  int
	Summary     string
	Strengths   json.RawMessage
	Suggestions json.RawMessage
}

// parseAnalysis validates the fields a history record depends on. The
// upstream contract nests both required fields under ats_score
// (ats_score.total_score and ats_score.final_assessment); a 2xx reply
// without either is treated as a failed analysis.
func parseAnalysis(raw json.RawMessage) (*AnalysisResult, error) {
	var body struct {
		ATSScore *struct {
			TotalScore      *float64 `json:"total_score"`
			FinalAssessment string   `json:"final_assessment"`
		} `json:"ats_score"`
		Strengths   json.RawMessage `json:"strengths"`
		Suggestions json.RawMessage `json:"suggestions"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	if body.ATSScore == nil || body.ATSScore.TotalScore == nil || body.ATSScore.FinalAssessment == "" {
		return nil, ErrIncompleteResponse
	}
	return &AnalysisResult{
		Raw:         raw,
		MatchScore:  int(*body.ATSScore.TotalScore),
		Summary:     body.ATSScore.FinalAssessment,
		Strengths:   body.Strengths,
		Suggestions: body.Suggestions,
	}, nil
}

func parseQuestions(raw json.RawMessage) ([]domain.Question, error) {
	var body struct {
		Questions []domain.Question `json:"questions"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	if len(body.Questions) == 0 {
		return nil, ErrIncompleteResponse
	}
	return body.Questions, nil
}

// FlattenStrings collects human-readable lines from an arbitrarily nested
// strengths/suggestions value. String leaves pass through; rewrite pairs
// collapse to a single before/after line; group keys are discarded.
func FlattenStrings(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil
	}
	out := make([]string, 0)
	flattenValue(value, &out)
	return out
}

func flattenValue(value any, out *[]string) {
	switch v := value.(type) {
	case string:
		if v != "" {
			*out = append(*out, v)
		}
	case []any:
		for _, item := range v {
			flattenValue(item, out)
		}
	case map[string]any:
		if line, ok := rewriteLine(v); ok {
			*out = append(*out, line)
			return
		}
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			flattenValue(v[key], out)
		}
	}
}

// rewriteLine renders a rewrite-example object ({original, improved} or
// {current, suggested}) as one line.
func rewriteLine(m map[string]any) (string, bool) {
	before, okBefore := firstString(m, "original", "current")
	after, okAfter := firstString(m, "improved", "suggested")
	if !okBefore || !okAfter {
		return "", false
	}
	return fmt.Sprintf("Rewrite: %q -> %q", before, after), true
}

func firstString(m map[string]any, keys ...string) (string, bool) {
	for _, key := range keys {
		if s, ok := m[key].(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}
