package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/feichai0017/document-ingest/internal/ingest"
	"github.com/feichai0017/document-ingest/internal/models"
)

// progressPrinter turns pipeline events into a per-item settle line. On a
// terminal it also keeps one rewritten status line for the running items.
type progressPrinter struct {
	w    io.Writer
	live bool

	mu       sync.Mutex
	order    []string
	items    map[string]models.UploadItem
	lastLine int
}

func newProgressPrinter(w io.Writer, live bool) *progressPrinter {
	return &progressPrinter{w: w, live: live, items: make(map[string]models.UploadItem)}
}

func (p *progressPrinter) handle(ev ingest.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch ev.Type {
	case ingest.EventItemUpdated:
		if ev.Item == nil {
			return
		}
		prev, seen := p.items[ev.Item.ID]
		if !seen {
			p.order = append(p.order, ev.Item.ID)
		}
		p.items[ev.Item.ID] = *ev.Item
		if ev.Item.Status.IsTerminal() && (!seen || !prev.Status.IsTerminal()) {
			p.clearLine()
			fmt.Fprintln(p.w, settleLine(*ev.Item))
		}
	case ingest.EventItemRemoved:
		delete(p.items, ev.ItemID)
	default:
		return
	}
	p.redraw()
}

// finish clears the live line so the summary starts on a clean row.
func (p *progressPrinter) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clearLine()
}

func (p *progressPrinter) redraw() {
	if !p.live {
		return
	}
	line := p.statusLine()
	pad := ""
	if n := p.lastLine - len(line); n > 0 {
		pad = strings.Repeat(" ", n)
	}
	fmt.Fprint(p.w, "\r"+line+pad)
	p.lastLine = len(line)
}

func (p *progressPrinter) clearLine() {
	if !p.live || p.lastLine == 0 {
		return
	}
	fmt.Fprint(p.w, "\r"+strings.Repeat(" ", p.lastLine)+"\r")
	p.lastLine = 0
}

func (p *progressPrinter) statusLine() string {
	total, settled := 0, 0
	var running []string
	for _, id := range p.order {
		item, ok := p.items[id]
		if !ok {
			continue
		}
		total++
		if item.Status.IsTerminal() {
			settled++
			continue
		}
		running = append(running, fmt.Sprintf("%s %d%%", item.File.Name, item.Progress))
	}
	if len(running) == 0 {
		return ""
	}
	if len(running) > 3 {
		running = append(running[:3], fmt.Sprintf("+%d more", len(running)-3))
	}
	return fmt.Sprintf("[%d/%d] %s", settled, total, strings.Join(running, ", "))
}

func settleLine(item models.UploadItem) string {
	switch item.Status {
	case models.StatusSuccess:
		return fmt.Sprintf("done     %s", item.File.Name)
	case models.StatusPartial:
		return fmt.Sprintf("partial  %s: %s", item.File.Name, item.Error)
	default:
		return fmt.Sprintf("failed   %s: %s", item.File.Name, item.Error)
	}
}
