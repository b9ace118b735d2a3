package workspace

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrNoActiveDocument = errors.New("no active document.")
	ErrTerminalNotFound = errors.New("terminal not found.")
	ErrInvalidSeverity  = errors.New("workspace: invalid severity")
)

// Severity of a user-facing message.
type Severity string

const (
	SeverityInformation Severity = "information"
	SeverityWarning     Severity = "warning"
	SeverityError       Severity = "error"
)

// Severities lists the accepted values in display order.
func Severities() []string {
	return []string{string(SeverityInformation), string(SeverityWarning), string(SeverityError)}
}

// Message is one entry of the message log.
type Message struct {
	Severity Severity  `json:"severity"`
	Text     string    `json:"text"`
	Items    []string  `json:"items,omitempty"`
	Modal    bool      `json:"modal"`
	At       time.Time `json:"at"`
}

// Responder picks an item for a message that waits for a choice. ok=false
// means the message was dismissed.
type Responder func(msg Message) (item string, ok bool)

// Terminal is a named terminal known to the host.
type Terminal struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Option func(*Workspace)

func WithResponder(r Responder) Option {
	return func(w *Workspace) { w.responder = r }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(w *Workspace) { w.logger = logger }
}

// WithMessageLimit bounds the retained message log.
func WithMessageLimit(n int) Option {
	return func(w *Workspace) {
		if n > 0 {
			w.messageLimit = n
		}
	}
}

// Workspace is safe for concurrent use by command handlers.
type Workspace struct {
	ctx          context.Context
	logger       zerolog.Logger
	responder    Responder
	messageLimit int

	mu        sync.RWMutex
	seq       int
	documents map[string]*Document
	active    string
	terminals map[string]*Terminal
	messages  []Message
}

// New builds an empty workspace. ctx bounds every document edit queue.
func New(ctx context.Context, opts ...Option) *Workspace {
	w := &Workspace{
		ctx:          ctx,
		logger:       zerolog.Nop(),
		messageLimit: 100,
		documents:    make(map[string]*Document),
		terminals:    make(map[string]*Terminal),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// NewDocument opens an untitled document and makes it active.
func (w *Workspace) NewDocument() *Document {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.seq++
	id := fmt.Sprintf("untitled-%d", w.seq)
	doc := newDocument(w.ctx, id, fmt.Sprintf("Untitled-%d", w.seq))
	w.documents[id] = doc
	w.active = id
	w.logger.Debug().Str("document", id).Msg("workspace.NewDocument")
	return doc
}

// Active returns the focused document.
func (w *Workspace) Active() (*Document, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	doc, ok := w.documents[w.active]
	if !ok {
		return nil, ErrNoActiveDocument
	}
	return doc, nil
}

// Focus makes id the active document.
func (w *Workspace) Focus(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.documents[id]; !ok {
		return fmt.Errorf("workspace: unknown document %q", id)
	}
	w.active = id
	return nil
}

// Documents lists open document ids in open order.
func (w *Workspace) Documents() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	ids := make([]string, 0, len(w.documents))
	for id := range w.documents {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return docSeq(ids[i]) < docSeq(ids[j]) })
	return ids
}

func docSeq(id string) int {
	var n int
	_, _ = fmt.Sscanf(id, "untitled-%d", &n)
	return n
}

// RegisterTerminal adds or renames a terminal.
func (w *Workspace) RegisterTerminal(id, name string) Terminal {
	w.mu.Lock()
	defer w.mu.Unlock()
	term := &Terminal{ID: id, Name: name}
	w.terminals[id] = term
	return *term
}

func (w *Workspace) RenameTerminal(id, name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	term, ok := w.terminals[id]
	if !ok {
		return ErrTerminalNotFound
	}
	w.logger.Debug().Str("terminal", id).Str("from", term.Name).Str("to", name).Msg("workspace.RenameTerminal")
	term.Name = name
	return nil
}

func (w *Workspace) TerminalName(id string) (string, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	term, ok := w.terminals[id]
	if !ok {
		return "", ErrTerminalNotFound
	}
	return term.Name, nil
}

func (w *Workspace) Terminals() []Terminal {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]Terminal, 0, len(w.terminals))
	for _, term := range w.terminals {
		out = append(out, *term)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ShowMessage records msg. With wait the responder chooses among its items.
func (w *Workspace) ShowMessage(msg Message, wait bool) (string, bool, error) {
	if msg.Severity == "" {
		msg.Severity = SeverityInformation
	}
	switch msg.Severity {
	case SeverityInformation, SeverityWarning, SeverityError:
	default:
		return "", false, fmt.Errorf("%w: %q", ErrInvalidSeverity, msg.Severity)
	}
	if msg.At.IsZero() {
		msg.At = time.Now()
	}

	w.mu.Lock()
	w.messages = append(w.messages, msg)
	if over := len(w.messages) - w.messageLimit; over > 0 {
		w.messages = append([]Message(nil), w.messages[over:]...)
	}
	responder := w.responder
	w.mu.Unlock()

	event := w.logger.Info()
	switch msg.Severity {
	case SeverityWarning:
		event = w.logger.Warn()
	case SeverityError:
		event = w.logger.Error()
	}
	event.Str("items", strings.Join(msg.Items, ",")).Bool("modal", msg.Modal).Msg(msg.Text)

	if !wait || responder == nil {
		return "", false, nil
	}
	item, ok := responder(msg)
	return item, ok, nil
}

// Messages returns up to limit most recent messages, oldest first.
func (w *Workspace) Messages(limit int) []Message {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if limit <= 0 || limit > len(w.messages) {
		limit = len(w.messages)
	}
	return append([]Message(nil), w.messages[len(w.messages)-limit:]...)
}

// Close stops every document queue.
func (w *Workspace) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, doc := range w.documents {
		doc.close()
	}
}

// FirstItem is a Responder that always picks the first offered item.
func FirstItem(msg Message) (string, bool) {
	if len(msg.Items) == 0 {
		return "", false
	}
	return msg.Items[0], true
}
