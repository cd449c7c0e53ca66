package store

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

// SchemaTrainingV1 tags files written by ConvertToTraining.
const SchemaTrainingV1 = "training_row_v1"

// TrainingRow is one supervised example for the ONNX policy: the 11 input
// features, the action taken as a one-hot target and the discounted return
// from this step to the end of the episode.
type TrainingRow struct {
	EpisodeID string    `parquet:"episode_id,dict"`
	Step      int32     `parquet:"step"`
	Features  []float32 `parquet:"features"`

	Action int32 `parquet:"action"`
	// Target as scalar columns (p0..p2) for readers that struggle with LIST<FLOAT>.
	PolicyP0 float32 `parquet:"policy_p0"`
	PolicyP1 float32 `parquet:"policy_p1"`
	PolicyP2 float32 `parquet:"policy_p2"`
	Return   float32 `parquet:"return"`

	Source string `parquet:"source,dict"`
}

// ConvertToTraining streams the episodes in inPath into training rows at
// outPath, discounting rewards by gamma. Rows of one episode must be
// contiguous and in step order, which is how this package writes them.
// Nothing is written when the input holds no rows.
func ConvertToTraining(inPath, outPath string, gamma float64) (int, error) {
	inF, err := os.Open(inPath)
	if err != nil {
		return 0, err
	}
	defer inF.Close()

	reader := parquet.NewGenericReader[StepRow](inF)
	defer reader.Close()

	outTmp := outPath + ".tmp"
	_ = os.Remove(outTmp)
	outF, err := os.OpenFile(outTmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	writer := parquet.NewGenericWriter[TrainingRow](
		outF,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.KeyValueMetadata("schema", SchemaTrainingV1),
	)

	closed := false
	defer func() {
		if !closed {
			_ = writer.Close()
			_ = outF.Close()
			_ = os.Remove(outTmp)
		}
	}()

	buf := make([]StepRow, 256)
	episode := make([]StepRow, 0, 512)
	rowsWritten := 0

	flushEpisode := func() error {
		if len(episode) == 0 {
			return nil
		}
		out := episodeToTraining(episode, gamma)
		if _, err := writer.Write(out); err != nil {
			return err
		}
		rowsWritten += len(out)
		episode = episode[:0]
		return nil
	}

	for {
		n, err := reader.Read(buf)
		for i := 0; i < n; i++ {
			row := buf[i]
			if len(episode) > 0 && episode[0].EpisodeID != row.EpisodeID {
				if err := flushEpisode(); err != nil {
					return 0, err
				}
			}
			// Rows share backing arrays with buf across reads.
			row.Features = append([]float32(nil), row.Features...)
			episode = append(episode, row)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return 0, fmt.Errorf("read %s: %w", inPath, err)
		}
	}
	if err := flushEpisode(); err != nil {
		return 0, err
	}

	closed = true
	if err := writer.Close(); err != nil {
		_ = outF.Close()
		_ = os.Remove(outTmp)
		return 0, err
	}
	if err := outF.Sync(); err != nil {
		_ = outF.Close()
		_ = os.Remove(outTmp)
		return 0, err
	}
	if err := outF.Close(); err != nil {
		_ = os.Remove(outTmp)
		return 0, err
	}

	if rowsWritten == 0 {
		_ = os.Remove(outTmp)
		return 0, nil
	}
	if err := os.Rename(outTmp, outPath); err != nil {
		_ = os.Remove(outTmp)
		return 0, err
	}
	return rowsWritten, nil
}

func episodeToTraining(steps []StepRow, gamma float64) []TrainingRow {
	out := make([]TrainingRow, len(steps))
	ret := 0.0
	for i := len(steps) - 1; i >= 0; i-- {
		s := steps[i]
		ret = float64(s.Reward) + gamma*ret
		r := TrainingRow{
			EpisodeID: s.EpisodeID,
			Step:      s.Step,
			Features:  s.Features,
			Action:    s.Action,
			Return:    float32(ret),
			Source:    s.Source,
		}
		switch s.Action {
		case 0:
			r.PolicyP0 = 1
		case 1:
			r.PolicyP1 = 1
		case 2:
			r.PolicyP2 = 1
		}
		out[i] = r
	}
	return out
}

// ReadTrainingParquet loads every row of a training file.
func ReadTrainingParquet(path string) ([]TrainingRow, error) {
	rows, err := parquet.ReadFile[TrainingRow](path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return rows, nil
}
