// Package game defines the core state types for the snake environment.
//
// These types are shared by the rules engine, the evaluation harness and
// anything that needs a read-only view of an episode (renderers, recorders,
// the viewer). Coordinates have (0,0) at the top-left; y grows downward.
package game

import "fmt"

// DefaultSize is the side length of the square grid.
const DefaultSize = 20

// Point is a grid coordinate.
type Point struct {
	X int
	Y int
}

func (p Point) Add(d Point) Point {
	return Point{X: p.X + d.X, Y: p.Y + d.Y}
}

func (p Point) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

// InBounds reports whether p lies on a size x size grid.
func (p Point) InBounds(size int) bool {
	return p.X >= 0 && p.X < size && p.Y >= 0 && p.Y < size
}

// GameState is a detached snapshot of an environment.
// Body is head-first.
type GameState struct {
	Size      int
	Body      []Point
	Direction Direction
	Food      Point
	Score     int
	Terminal  bool
}

// Head returns the first body cell. The zero Point is returned for an empty body.
func (s *GameState) Head() Point {
	if len(s.Body) == 0 {
		return Point{}
	}
	return s.Body[0]
}

// Clone performs a deep copy of the snapshot.
func (s *GameState) Clone() *GameState {
	if s == nil {
		return nil
	}

	out := &GameState{
		Size:      s.Size,
		Direction: s.Direction,
		Food:      s.Food,
		Score:     s.Score,
		Terminal:  s.Terminal,
	}
	if len(s.Body) > 0 {
		out.Body = make([]Point, len(s.Body))
		copy(out.Body, s.Body)
	}
	return out
}

// Validate checks the grid invariants: every cell in bounds, a non-empty body
// without duplicates, adjacent consecutive segments and food off the snake.
func (s *GameState) Validate() error {
	if s.Size < MinSize {
		return &ConfigurationError{Field: "size", Reason: fmt.Sprintf("grid side %d is below %d", s.Size, MinSize)}
	}
	if len(s.Body) == 0 {
		return &ConfigurationError{Field: "body", Reason: "snake has no segments"}
	}
	if !s.Direction.Valid() {
		return &ConfigurationError{Field: "direction", Reason: fmt.Sprintf("unknown direction %d", s.Direction)}
	}

	seen := make(map[Point]struct{}, len(s.Body))
	for i, p := range s.Body {
		if !p.InBounds(s.Size) {
			return &ConfigurationError{Field: "body", Reason: fmt.Sprintf("segment %d at %v is off the grid", i, p)}
		}
		if _, dup := seen[p]; dup {
			return &ConfigurationError{Field: "body", Reason: fmt.Sprintf("segment %d at %v overlaps the body", i, p)}
		}
		seen[p] = struct{}{}
		if i > 0 && manhattan(p, s.Body[i-1]) != 1 {
			return &ConfigurationError{Field: "body", Reason: fmt.Sprintf("segment %d at %v is not adjacent to %v", i, p, s.Body[i-1])}
		}
	}

	if !s.Food.InBounds(s.Size) {
		return &ConfigurationError{Field: "food", Reason: fmt.Sprintf("food at %v is off the grid", s.Food)}
	}
	if _, onSnake := seen[s.Food]; onSnake {
		return &ConfigurationError{Field: "food", Reason: fmt.Sprintf("food at %v is on the snake", s.Food)}
	}
	return nil
}

func manhattan(a, b Point) int {
	dx := a.X - b.X
	if dx < 0 {
		dx = -dx
	}
	dy := a.Y - b.Y
	if dy < 0 {
		dy = -dy
	}
	return dx + dy
}
