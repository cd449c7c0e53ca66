package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/brensch/neatsnake/harness"
	"github.com/brensch/neatsnake/render"
)

type tickMsg time.Time

type frameMsg struct {
	frame render.Frame
	gen   int
}

type endMsg struct {
	res harness.Result
	err error
	gen int
}

type model struct {
	ctx      context.Context
	watcher  watcher
	renderer *render.StyledRenderer
	delay    time.Duration

	seed    int64
	gen     int // bumps on restart so stale messages are dropped
	frames  chan frameMsg
	ends    chan endMsg
	cancel  context.CancelFunc
	current *render.Frame
	result  *endMsg
	paused  bool
}

func newModel(ctx context.Context, w watcher, r *render.StyledRenderer, seed int64, delay time.Duration) *model {
	m := &model{
		ctx:      ctx,
		watcher:  w,
		renderer: r,
		delay:    delay,
		seed:     seed,
		frames:   make(chan frameMsg),
		ends:     make(chan endMsg, 1),
	}
	m.startEpisode()
	return m
}

// startEpisode plays the current seed in the background. Each step blocks
// until the model asks for the next frame.
func (m *model) startEpisode() {
	m.stopEpisode()
	m.gen++
	m.current = nil
	m.result = nil

	ctx, cancel := context.WithCancel(m.ctx)
	m.cancel = cancel
	gen, frames, ends := m.gen, m.frames, m.ends
	go func() {
		res, err := m.watcher.play(ctx, m.seed, func(f render.Frame) error {
			select {
			case frames <- frameMsg{frame: f, gen: gen}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		select {
		case ends <- endMsg{res: res, err: err, gen: gen}:
		case <-ctx.Done():
		}
	}()
}

func (m *model) stopEpisode() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

func (m *model) tickCmd() tea.Cmd {
	return tea.Tick(m.delay, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// nextCmd pulls one frame, or the end of the episode.
func (m *model) nextCmd() tea.Cmd {
	frames, ends := m.frames, m.ends
	return func() tea.Msg {
		select {
		case f := <-frames:
			return f
		case e := <-ends:
			return e
		}
	}
}

func (m *model) Init() tea.Cmd {
	return m.tickCmd()
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.stopEpisode()
			return m, tea.Quit
		case " ":
			m.paused = !m.paused
		case "r":
			m.startEpisode()
		case "n":
			m.seed++
			m.startEpisode()
		}
	case tickMsg:
		if m.paused || m.result != nil {
			return m, m.tickCmd()
		}
		return m, tea.Batch(m.nextCmd(), m.tickCmd())
	case frameMsg:
		if msg.gen == m.gen {
			f := msg.frame
			m.current = &f
		}
	case endMsg:
		if msg.gen == m.gen {
			m.result = &msg
		}
	}
	return m, nil
}

func (m *model) View() string {
	var b strings.Builder
	if m.current == nil {
		fmt.Fprintf(&b, "starting %s seed %d...\n", m.watcher.label, m.seed)
	} else {
		b.WriteString(m.renderer.View(*m.current) + "\n")
	}
	switch {
	case m.result != nil && m.result.err != nil:
		fmt.Fprintf(&b, "\nerror: %v\n", m.result.err)
	case m.result != nil:
		r := m.result.res
		fmt.Fprintf(&b, "\nepisode over: %s after %d steps, score %d, fitness %.1f\n", r.Reason, r.Steps, r.Score, r.Fitness)
	case m.paused:
		b.WriteString("\npaused\n")
	}
	b.WriteString("\nspace pause | r restart | n next seed | q quit\n")
	return b.String()
}
