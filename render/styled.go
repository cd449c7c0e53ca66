package render

import (
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// StyledRenderer draws a coloured board with lipgloss.
type StyledRenderer struct {
	W            io.Writer
	ShowFeatures bool

	Border lipgloss.Style
	Title  lipgloss.Style
	Head   lipgloss.Style
	Body   lipgloss.Style
	Food   lipgloss.Style
	Empty  lipgloss.Style
	Dim    lipgloss.Style
}

func NewStyledRenderer(w io.Writer) *StyledRenderer {
	return &StyledRenderer{
		W:      w,
		Border: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")),
		Title:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")),
		Head:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("46")),
		Body:   lipgloss.NewStyle().Foreground(lipgloss.Color("34")),
		Food:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		Empty:  lipgloss.NewStyle().Foreground(lipgloss.Color("238")),
		Dim:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	}
}

func (r *StyledRenderer) Draw(f Frame) error {
	_, err := io.WriteString(r.W, r.View(f)+"\n")
	return err
}

// View returns the frame as a styled block, suitable for a bubbletea View.
func (r *StyledRenderer) View(f Frame) string {
	var rows []string
	for _, row := range Grid(f.State) {
		var sb strings.Builder
		for _, c := range row {
			sb.WriteString(r.cell(c))
		}
		rows = append(rows, sb.String())
	}
	board := r.Border.Render(strings.Join(rows, "\n"))

	parts := []string{r.Title.Render(header(f)), board}
	if r.ShowFeatures && f.Features != nil {
		feats := append([]string{"action: " + f.Action.String()}, FeatureLines(*f.Features)...)
		parts[1] = lipgloss.JoinHorizontal(lipgloss.Top, board, "  ", r.Dim.Render(strings.Join(feats, "\n")))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (r *StyledRenderer) cell(c rune) string {
	switch c {
	case GlyphHead:
		return r.Head.Render("██")
	case GlyphBody:
		return r.Body.Render("▓▓")
	case GlyphFood:
		return r.Food.Render("●") + " "
	default:
		return r.Empty.Render("· ")
	}
}
