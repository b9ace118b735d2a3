package workspace

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/danmuck/donuts/internal/taskqueue"
)

var ErrInvalidSelection = errors.New("workspace: invalid selection")

// Selection is a byte range of document text. Start == End is a cursor.
type Selection struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Document is one open buffer. The first selection is the primary one.
type Document struct {
	ID   string
	Name string

	mu         sync.RWMutex
	text       string
	selections []Selection
	queue      *taskqueue.Queue
}

func newDocument(ctx context.Context, id, name string) *Document {
	return &Document{
		ID:         id,
		Name:       name,
		selections: []Selection{{}},
		queue:      taskqueue.New(ctx),
	}
}

func (d *Document) Text() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.text
}

func (d *Document) Selections() []Selection {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Selection(nil), d.selections...)
}

// SelectedText returns the text covered by each selection.
func (d *Document) SelectedText() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.selections))
	for _, sel := range d.selections {
		out = append(out, d.text[sel.Start:sel.End])
	}
	return out
}

// Select replaces the selection set.
func (d *Document) Select(selections ...Selection) error {
	if len(selections) == 0 {
		return fmt.Errorf("%w: empty selection set", ErrInvalidSelection)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, sel := range selections {
		if sel.Start < 0 || sel.End < sel.Start || sel.End > len(d.text) {
			return fmt.Errorf("%w: %d..%d", ErrInvalidSelection, sel.Start, sel.End)
		}
	}
	d.selections = append([]Selection(nil), selections...)
	return nil
}

// Append queues text for the end of the document.
func (d *Document) Append(text string) error {
	return d.queue.Submit(func(context.Context) error {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.text += text
		end := len(d.text)
		d.selections = []Selection{{Start: end, End: end}}
		return nil
	})
}

// Insert queues text at the primary selection, or at every selection when
// multiple is set. With replace the selected text is overwritten; otherwise
// text goes in at the selection start. Selections collapse after the insert.
func (d *Document) Insert(text string, replace, multiple bool) error {
	return d.queue.Submit(func(context.Context) error {
		d.mu.Lock()
		defer d.mu.Unlock()

		targets := d.selections
		if !multiple && len(targets) > 1 {
			targets = targets[:1]
		}
		ordered := append([]Selection(nil), targets...)
		sort.Slice(ordered, func(i, j int) bool { return ordered[i].Start > ordered[j].Start })

		for _, sel := range ordered {
			if sel.End > len(d.text) {
				return fmt.Errorf("%w: %d..%d", ErrInvalidSelection, sel.Start, sel.End)
			}
			end := sel.Start
			if replace {
				end = sel.End
			}
			d.text = d.text[:sel.Start] + text + d.text[end:]
		}

		collapsed := make([]Selection, 0, len(targets))
		shift := 0
		for _, sel := range sortAscending(targets) {
			removed := 0
			if replace {
				removed = sel.End - sel.Start
			}
			pos := sel.Start + shift + len(text)
			collapsed = append(collapsed, Selection{Start: pos, End: pos})
			shift += len(text) - removed
		}
		d.selections = collapsed
		return nil
	})
}

// Flush waits for queued edits and reports the first failed one.
func (d *Document) Flush(ctx context.Context) error {
	return d.queue.Flush(ctx)
}

func (d *Document) close() {
	d.queue.Close()
}

func sortAscending(in []Selection) []Selection {
	out := append([]Selection(nil), in...)
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}
