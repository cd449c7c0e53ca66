// Package render draws boards for terminals: plain ASCII for logs and
// pipes, lipgloss-styled for the TUIs.
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/brensch/neatsnake/game"
	"github.com/brensch/neatsnake/harness"
	"github.com/brensch/neatsnake/rules"
)

// Cell glyphs used by Grid.
const (
	GlyphEmpty = '.'
	GlyphHead  = 'O'
	GlyphBody  = 'o'
	GlyphFood  = 'F'
)

// Frame is one thing to draw.
type Frame struct {
	State    *game.GameState
	Step     int
	Fitness  float64
	Action   game.Action
	Features *rules.Features // optional
	Label    string
}

// FrameFromStep wraps an observed harness step.
func FrameFromStep(label string, si harness.StepInfo) Frame {
	f := si.Features
	return Frame{
		State:    si.State,
		Step:     si.Step,
		Fitness:  si.Fitness,
		Action:   si.Action,
		Features: &f,
		Label:    label,
	}
}

// Renderer draws frames somewhere.
type Renderer interface {
	Draw(Frame) error
}

// Grid lays the state out row by row with y=0 at the top.
func Grid(st *game.GameState) [][]rune {
	grid := make([][]rune, st.Size)
	for y := range grid {
		grid[y] = make([]rune, st.Size)
		for x := range grid[y] {
			grid[y][x] = GlyphEmpty
		}
	}
	if st.Food.InBounds(st.Size) {
		grid[st.Food.Y][st.Food.X] = GlyphFood
	}
	// Body last so a head sitting on food after a full board still shows.
	for i, p := range st.Body {
		if !p.InBounds(st.Size) {
			continue
		}
		if i == 0 {
			grid[p.Y][p.X] = GlyphHead
		} else {
			grid[p.Y][p.X] = GlyphBody
		}
	}
	return grid
}

func header(f Frame) string {
	st := f.State
	status := "alive"
	if st.Terminal {
		status = "dead"
	}
	label := f.Label
	if label == "" {
		label = "episode"
	}
	return fmt.Sprintf("=== %s step %d | score %d | len %d | fitness %.1f | %s | heading %s ===",
		label, f.Step, st.Score, len(st.Body), f.Fitness, status, st.Direction)
}

// FeatureLines formats the encoding one feature per line.
func FeatureLines(feats rules.Features) []string {
	lines := make([]string, rules.NumFeatures)
	for i, name := range rules.FeatureNames {
		lines[i] = fmt.Sprintf("%-18s %.3f", name, feats[i])
	}
	return lines
}

// ASCIIRenderer writes plain text boards.
type ASCIIRenderer struct {
	W            io.Writer
	ShowFeatures bool
}

func (r *ASCIIRenderer) Draw(f Frame) error {
	_, err := io.WriteString(r.W, r.String(f))
	return err
}

func (r *ASCIIRenderer) String(f Frame) string {
	var sb strings.Builder
	sb.WriteString(header(f))
	sb.WriteByte('\n')
	for _, row := range Grid(f.State) {
		for x, c := range row {
			if x > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteRune(c)
		}
		sb.WriteByte('\n')
	}
	if r.ShowFeatures && f.Features != nil {
		sb.WriteString(fmt.Sprintf("action: %s\n", f.Action))
		for _, line := range FeatureLines(*f.Features) {
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
