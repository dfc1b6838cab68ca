package trial

import (
	"math"
	"sort"
)

// WideRecord is one input row as read from the sheet: a participant plus the
// 14 score cells keyed by outcome. Missing cells are NaN.
type WideRecord struct {
	Participant Participant
	Pre         map[Outcome]float64
	Post        map[Outcome]float64
}

// Long pivots wide records into one Observation per (participant, outcome,
// timepoint). Missing cells are carried as NaN; exclusion happens later,
// per outcome, when the long rows are paired.
func Long(records []WideRecord) []Observation {
	obs := make([]Observation, 0, len(records)*len(Outcomes())*2)
	for _, rec := range records {
		for _, outcome := range Outcomes() {
			obs = append(obs,
				Observation{
					Participant: rec.Participant.ID,
					Outcome:     outcome,
					Timepoint:   TimepointPre,
					Score:       scoreOrNaN(rec.Pre, outcome),
				},
				Observation{
					Participant: rec.Participant.ID,
					Outcome:     outcome,
					Timepoint:   TimepointPost,
					Score:       scoreOrNaN(rec.Post, outcome),
				},
			)
		}
	}
	return obs
}

func scoreOrNaN(m map[Outcome]float64, o Outcome) float64 {
	if v, ok := m[o]; ok {
		return v
	}
	return math.NaN()
}

// PairByOutcome groups long observations by outcome and pivots the timepoint
// back into columns, one PairedScore per (participant, outcome). A participant
// missing either timepoint is dropped from that outcome only; their rows for
// other outcomes are unaffected.
func PairByOutcome(obs []Observation) (map[Outcome][]PairedScore, map[Outcome]int) {
	type key struct {
		participant int
		outcome     Outcome
	}
	pre := make(map[key]float64)
	post := make(map[key]float64)
	for _, o := range obs {
		k := key{o.Participant, o.Outcome}
		switch o.Timepoint {
		case TimepointPre:
			pre[k] = o.Score
		case TimepointPost:
			post[k] = o.Score
		}
	}

	paired := make(map[Outcome][]PairedScore, len(Outcomes()))
	dropped := make(map[Outcome]int, len(Outcomes()))
	for k, preScore := range pre {
		postScore, ok := post[k]
		if !ok || math.IsNaN(preScore) || math.IsNaN(postScore) {
			dropped[k.outcome]++
			continue
		}
		paired[k.outcome] = append(paired[k.outcome], PairedScore{
			Participant: k.participant,
			Outcome:     k.outcome,
			Pre:         preScore,
			Post:        postScore,
		})
	}

	// Map iteration order is random; keep rows deterministic for downstream
	// fits and fixtures.
	for outcome := range paired {
		rows := paired[outcome]
		sort.Slice(rows, func(i, j int) bool { return rows[i].Participant < rows[j].Participant })
	}
	return paired, dropped
}

// Flatten concatenates per-outcome rows in canonical outcome order.
func Flatten(byOutcome map[Outcome][]PairedScore) []PairedScore {
	var out []PairedScore
	for _, outcome := range Outcomes() {
		out = append(out, byOutcome[outcome]...)
	}
	return out
}
