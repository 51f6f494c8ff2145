package main

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fgeck/sevenzip-backup/internal/models"
	"github.com/mattn/go-isatty"
)

// progressPrinter renders engine progress. On a terminal the line is
// redrawn in place; otherwise a line is printed every 10 percent.
type progressPrinter struct {
	mu          sync.Mutex
	out         io.Writer
	interactive bool
	last        models.Progress
	active      bool
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	interactive := false
	if f, ok := out.(*os.File); ok {
		interactive = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &progressPrinter{out: out, interactive: interactive}
}

// Update prints p if it is worth showing.
func (p *progressPrinter) Update(pr models.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()

	sameTask := p.active && pr.Target == p.last.Target && pr.Stage == p.last.Stage
	if p.interactive {
		if p.active && !sameTask {
			fmt.Fprintln(p.out)
		}
		fmt.Fprintf(p.out, "\r%s [%s] %3d%%", pr.Target, pr.Stage, pr.Percent)
	} else if !sameTask || pr.Percent/10 > p.last.Percent/10 {
		fmt.Fprintf(p.out, "%s [%s] %d%%\n", pr.Target, pr.Stage, pr.Percent)
	}

	p.last = pr
	p.active = true
}

// Done terminates an in-place progress line.
func (p *progressPrinter) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.interactive && p.active {
		fmt.Fprintln(p.out)
	}
	p.active = false
}
