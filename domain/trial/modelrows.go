package trial

import "fmt"

// ModelRow is the analysis-ready row both modelers consume: standardized
// pre/post scores joined with the participant's training condition.
type ModelRow struct {
	Participant int     `json:"participant"`
	Outcome     Outcome `json:"outcome"`
	Group       Group   `json:"group"`
	PreZ        float64 `json:"pre_z"`
	PostZ       float64 `json:"post_z"`
}

// JoinGroups attaches each participant's group assignment to their
// standardized rows. Both the single-level and hierarchical fits consume the
// same joined rows, so the per-outcome missing-data exclusion is identical
// across models.
func JoinGroups(byOutcome map[Outcome][]StandardizedScore, participants []Participant) (map[Outcome][]ModelRow, error) {
	groupOf := make(map[int]Group, len(participants))
	for _, p := range participants {
		groupOf[p.ID] = p.Group
	}

	joined := make(map[Outcome][]ModelRow, len(byOutcome))
	for outcome, rows := range byOutcome {
		modelRows := make([]ModelRow, 0, len(rows))
		for _, row := range rows {
			group, ok := groupOf[row.Participant]
			if !ok {
				return nil, fmt.Errorf("outcome %s: participant %d has scores but no group assignment", outcome, row.Participant)
			}
			modelRows = append(modelRows, ModelRow{
				Participant: row.Participant,
				Outcome:     outcome,
				Group:       group,
				PreZ:        row.PreZ,
				PostZ:       row.PostZ,
			})
		}
		joined[outcome] = modelRows
	}
	return joined, nil
}

// Design returns the fixed-effect design vector for one row: intercept,
// standardized pre score, and treatment dummies for the two stability
// variants against the instability reference.
func (r ModelRow) Design() []float64 {
	x := []float64{1, r.PreZ, 0, 0}
	switch r.Group {
	case GroupStabilityA:
		x[2] = 1
	case GroupStabilityB:
		x[3] = 1
	}
	return x
}

// NumCoef is the fixed-effect coefficient count shared by both modelers.
const NumCoef = 4
