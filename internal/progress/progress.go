// Package progress draws a single-line text bar that redraws in place.
package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

const width = 30

// Unit scales the counters shown after the bar.
type Unit struct {
	Name string
	Div  int
}

var (
	Files = Unit{Name: "files", Div: 1}
	KB    = Unit{Name: "KB", Div: 1024}
)

type Bar struct {
	w       io.Writer
	label   string
	unit    Unit
	total   int
	current int
	done    bool
	mu      sync.Mutex
}

func New(w io.Writer, label string, total int, unit Unit) *Bar {
	if unit.Div <= 0 {
		unit.Div = 1
	}
	return &Bar{w: w, label: label, total: total, unit: unit}
}

func (b *Bar) Add(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current += n
	b.draw()
}

func (b *Bar) draw() {
	if b.total <= 0 || b.done {
		return
	}
	percent := float64(b.current) / float64(b.total)
	if percent > 1 {
		percent = 1
	}
	filled := int(float64(width) * percent)

	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)

	// \r kembali ke awal baris
	fmt.Fprintf(b.w, "\r [%s] [%s] %d%% (%d/%d %s)", b.label, bar, int(percent*100),
		b.current/b.unit.Div, b.total/b.unit.Div, b.unit.Name)

	if b.current >= b.total {
		b.done = true
		fmt.Fprintln(b.w)
	}
}
