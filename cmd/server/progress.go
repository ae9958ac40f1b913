package main

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// progress prints scan progress. On a terminal the line is redrawn in place,
// otherwise each update gets its own line.
type progress struct {
	w    io.Writer
	tty  bool
	last int
	open bool
}

func newProgress(f *os.File) *progress {
	return &progress{w: f, tty: term.IsTerminal(int(f.Fd())), last: -1}
}

// Update shows pct unless it is unchanged.
func (p *progress) Update(pct, files int) {
	if pct == p.last {
		return
	}
	p.last = pct
	if p.tty {
		fmt.Fprintf(p.w, "\r\033[K[%3d%%] scanning %d file(s)", pct, files)
		p.open = true
		return
	}
	fmt.Fprintf(p.w, "[%3d%%] scanning %d file(s)\n", pct, files)
}

// Done ends a redrawn line.
func (p *progress) Done() {
	if p.open {
		fmt.Fprintln(p.w)
		p.open = false
	}
}
