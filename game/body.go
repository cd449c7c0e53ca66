package game

// Body is the snake's segment list, head first, stored in a ring buffer so
// that moving is a push at the front and a pop at the back without shifting.
//
// A Body is owned by exactly one environment. Cells returns a copy; nothing
// hands out the backing array.
type Body struct {
	buf   []Point
	head  int
	count int
	cells map[Point]int
}

// initialBodyCap is the starting ring size. The ring grows with the snake,
// never with the board.
const initialBodyCap = 16

// NewBody builds a body from head-first cells.
func NewBody(cells []Point) *Body {
	b := &Body{
		buf:   make([]Point, max(len(cells), initialBodyCap)),
		cells: make(map[Point]int, len(cells)),
	}
	for i := len(cells) - 1; i >= 0; i-- {
		b.PushFront(cells[i])
	}
	return b
}

func (b *Body) Len() int { return b.count }

// Head returns the front segment. The body must not be empty.
func (b *Body) Head() Point {
	return b.buf[b.head]
}

// Tail returns the back segment. The body must not be empty.
func (b *Body) Tail() Point {
	return b.buf[(b.head+b.count-1)%len(b.buf)]
}

// At returns segment i counted from the head.
func (b *Body) At(i int) Point {
	return b.buf[(b.head+i)%len(b.buf)]
}

// Contains reports whether any segment occupies p.
func (b *Body) Contains(p Point) bool {
	return b.cells[p] > 0
}

// PushFront inserts p as the new head, growing the ring when full.
func (b *Body) PushFront(p Point) {
	if b.count == len(b.buf) {
		b.grow()
	}
	b.head = (b.head - 1 + len(b.buf)) % len(b.buf)
	b.buf[b.head] = p
	b.count++
	b.cells[p]++
}

// PopBack removes and returns the tail segment.
func (b *Body) PopBack() Point {
	idx := (b.head + b.count - 1) % len(b.buf)
	p := b.buf[idx]
	b.count--
	if n := b.cells[p]; n <= 1 {
		delete(b.cells, p)
	} else {
		b.cells[p] = n - 1
	}
	return p
}

// Cells returns a head-first copy of the segments.
func (b *Body) Cells() []Point {
	out := make([]Point, b.count)
	for i := range out {
		out[i] = b.At(i)
	}
	return out
}

func (b *Body) grow() {
	next := make([]Point, 2*len(b.buf))
	for i := 0; i < b.count; i++ {
		next[i] = b.At(i)
	}
	b.buf = next
	b.head = 0
}
