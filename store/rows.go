// Package store persists evaluation episodes as Parquet, one row per step.
package store

import (
	"github.com/brensch/neatsnake/game"
	"github.com/brensch/neatsnake/harness"
)

// SchemaStepV1 is written into every file's key/value metadata.
const SchemaStepV1 = "episode_step_v1"

// StepRow is a single (episode, step) record.
//
// Features is the encoding the policy saw before acting. Action is the
// relative action it chose: 0=straight, 1=left, 2=right. Body is stored
// head first after the step was applied.
type StepRow struct {
	EpisodeID   string `parquet:"episode_id,dict"`
	CandidateID string `parquet:"candidate_id,dict"`
	Seed        int64  `parquet:"seed"`
	Step        int32  `parquet:"step"`
	Size        int32  `parquet:"size"`

	Features []float32 `parquet:"features"`
	Action   int32     `parquet:"action"`
	Reward   float32   `parquet:"reward"`
	Fitness  float32   `parquet:"fitness"`
	Terminal bool      `parquet:"terminal"`
	Score    int32     `parquet:"score"`

	Direction int32   `parquet:"direction"`
	HeadX     int32   `parquet:"head_x"`
	HeadY     int32   `parquet:"head_y"`
	FoodX     int32   `parquet:"food_x"`
	FoodY     int32   `parquet:"food_y"`
	BodyX     []int32 `parquet:"body_x"`
	BodyY     []int32 `parquet:"body_y"`

	Source string `parquet:"source,dict"`
}

// State rebuilds the board stored in a row.
func (r StepRow) State() *game.GameState {
	body := make([]game.Point, len(r.BodyX))
	for i := range body {
		body[i] = game.Point{X: int(r.BodyX[i]), Y: int(r.BodyY[i])}
	}
	return &game.GameState{
		Size:      int(r.Size),
		Body:      body,
		Direction: game.Direction(r.Direction),
		Food:      game.Point{X: int(r.FoodX), Y: int(r.FoodY)},
		Score:     int(r.Score),
		Terminal:  r.Terminal,
	}
}

// RowFromStep flattens one observed step.
func RowFromStep(episodeID, candidateID, source string, seed int64, si harness.StepInfo) StepRow {
	st := si.State
	feats := make([]float32, len(si.Features))
	for i, v := range si.Features {
		feats[i] = float32(v)
	}
	bx := make([]int32, len(st.Body))
	by := make([]int32, len(st.Body))
	for i, p := range st.Body {
		bx[i] = int32(p.X)
		by[i] = int32(p.Y)
	}
	head := st.Head()
	return StepRow{
		EpisodeID:   episodeID,
		CandidateID: candidateID,
		Seed:        seed,
		Step:        int32(si.Step),
		Size:        int32(st.Size),
		Features:    feats,
		Action:      int32(si.Action),
		Reward:      float32(si.Reward),
		Fitness:     float32(si.Fitness),
		Terminal:    si.Terminal,
		Score:       int32(st.Score),
		Direction:   int32(st.Direction),
		HeadX:       int32(head.X),
		HeadY:       int32(head.Y),
		FoodX:       int32(st.Food.X),
		FoodY:       int32(st.Food.Y),
		BodyX:       bx,
		BodyY:       by,
		Source:      source,
	}
}
