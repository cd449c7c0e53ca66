package store

import (
	"github.com/google/uuid"

	"github.com/brensch/neatsnake/harness"
)

// Recorder collects the steps of one episode. Plug OnStep into
// harness.Options and hand Rows to a writer once Evaluate returns.
type Recorder struct {
	EpisodeID   string
	CandidateID string
	Source      string
	Seed        int64

	rows []StepRow
}

func NewRecorder(candidateID, source string, seed int64) *Recorder {
	return &Recorder{
		EpisodeID:   uuid.NewString(),
		CandidateID: candidateID,
		Source:      source,
		Seed:        seed,
		rows:        make([]StepRow, 0, 256),
	}
}

func (r *Recorder) OnStep(si harness.StepInfo) {
	r.rows = append(r.rows, RowFromStep(r.EpisodeID, r.CandidateID, r.Source, r.Seed, si))
}

func (r *Recorder) Rows() []StepRow { return r.rows }
