// internal/pipeline/gate.go
package pipeline

import (
	"fmt"
	"sort"
	"strings"
)

// GateOutcome is the quality gate verdict for one critiqued draft.
//
// Exactly one of three shapes holds: Passed (all dimensions met the
// threshold), NeedsRewrite (a dimension failed and iterations remain), or
// neither (a dimension failed at the iteration cap and the draft ships
// as-is).
type GateOutcome struct {
	Asset        AssetType
	Passed       bool
	NeedsRewrite bool
	Iteration    int
	Reason       string
	FinalScores  Scores
}

// EvaluateGate applies the quality gate to one set of critique scores.
//
// It is a pure function: the scores map is copied, never mutated. A
// missing dimension counts as the neutral midpoint, so a critic that
// omitted a dimension cannot sneak a draft past the gate.
func EvaluateGate(asset AssetType, scores Scores, iteration int, threshold float64, maxIterations int) GateOutcome {
	dims := Dimensions(asset)

	final := make(Scores, len(dims))
	var failing []string
	for _, d := range dims {
		v, ok := scores[d]
		if !ok {
			v = NeutralScore
		}
		v = clampScore(v)
		final[d] = v
		if v < threshold {
			failing = append(failing, d)
		}
	}
	sort.Strings(failing)

	out := GateOutcome{
		Asset:       asset,
		Iteration:   iteration,
		FinalScores: final,
	}

	if len(failing) == 0 {
		out.Passed = true
		out.Reason = fmt.Sprintf("All dimensions >= %.1f", threshold)
		return out
	}

	out.Reason = "Dimensions below threshold: " + strings.Join(failing, ", ")
	out.NeedsRewrite = iteration < maxIterations
	return out
}

// Decision converts a gate outcome into the log record appended to the
// run's quality gate log.
func (g GateOutcome) Decision() GateDecision {
	scores := make(map[string]float64, len(g.FinalScores))
	for k, v := range g.FinalScores {
		scores[k] = v
	}
	return GateDecision{
		Asset:       g.Asset,
		Passed:      g.Passed,
		Reason:      g.Reason,
		FinalScores: scores,
	}
}
