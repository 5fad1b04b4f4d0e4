// Package dispatch turns one user utterance (plus queued images) into
// exactly one handling branch and runs it to completion.
package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/PabloGalante/chicha/internal/domain"
	"github.com/PabloGalante/chicha/internal/observability"
)

// KindImageGeneration labels outcomes of the generate-image action.
const KindImageGeneration IntentKind = "image_generation"

var ErrClosed = errors.New("dispatcher closed")

// OutboundMessage is what the dispatcher hands to the conversation log.
type OutboundMessage struct {
	Text       string
	FromBot    bool
	Processing bool
	Sources    []domain.Source
	ImageURLs  []string
	Location   *domain.Coordinates
}

// ConversationLog is the conversation store as seen by one dispatcher.
type ConversationLog interface {
	Append(ctx context.Context, msg OutboundMessage) (domain.MessageID, error)
	Replace(ctx context.Context, id domain.MessageID, msg OutboundMessage) error
	Remove(ctx context.Context, id domain.MessageID) error
	History(ctx context.Context, limit int) ([]*domain.Message, error)
}

// Deps are the collaborators of a Dispatcher. Any service may be nil, in
// which case its branch fails with a notification.
type Deps struct {
	Log      ConversationLog
	Notifier domain.Notifier

	LLM     domain.LLMClient
	Search  domain.WebSearcher
	Weather domain.WeatherClient
	Images  domain.ImageGenerator
	Storage domain.ObjectStorage

	HistoryLimit int
}

// Outcome describes what one dispatch did.
type Outcome struct {
	Kind   IntentKind
	Intent Intent // nil for image generation

	// Messages still present in the log, in emission order.
	Messages []domain.MessageID

	// Err is a branch failure that was already surfaced as a notification.
	Err error
}

func (o *Outcome) Failed() bool { return o.Err != nil }

// Dispatcher owns the input buffer and attachment queue of one chat and
// dispatches their content. One dispatch runs at a time.
type Dispatcher struct {
	deps  Deps
	now   func() time.Time
	newID func() string

	previews sync.WaitGroup

	mu          sync.Mutex
	input       string
	attachments []*Attachment
	busy        bool
	phase       Phase
	closed      bool
}

func New(deps Deps) *Dispatcher {
	if deps.Notifier == nil {
		deps.Notifier = domain.NotifierFunc(func(context.Context, domain.Notification) {})
	}
	return &Dispatcher{
		deps:  deps,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// ─────────────────────────────────────────
// Host surface
// ─────────────────────────────────────────

func (d *Dispatcher) SetInput(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.input = text
	}
}

// AppendInput adds text (usually a finalized dictation segment) to the
// input buffer, separated by a space.
func (d *Dispatcher) AppendInput(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if d.input == "" {
		d.input = text
		return
	}
	d.input += " " + text
}

func (d *Dispatcher) Input() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.input
}

// HasContent gates the send, search and generate actions.
func (d *Dispatcher) HasContent() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return strings.TrimSpace(d.input) != "" || len(d.attachments) > 0
}

func (d *Dispatcher) Busy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.busy
}

func (d *Dispatcher) Phase() Phase {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.phase
}

// Attachments returns a copy of the queue in order.
func (d *Dispatcher) Attachments() []Attachment {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshotAttachments()
}

// AddAttachment validates and queues an image. Rejections are notified and
// returned as domain.ErrValidation; nothing touches the network.
func (d *Dispatcher) AddAttachment(ctx context.Context, name, contentType string, data []byte) (Attachment, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return Attachment{}, ErrClosed
	}
	title, desc, err := validateAttachment(name, contentType, len(data), len(d.attachments))
	if err != nil {
		d.mu.Unlock()
		observability.LoggerFromContext(ctx).Warn("attachment rejected", "name", name, "error", err)
		d.notify(ctx, title, desc)
		return Attachment{}, err
	}

	a := &Attachment{
		ID:          d.newID(),
		Name:        name,
		ContentType: contentType,
		Data:        data,
	}
	d.attachments = append(d.attachments, a)
	added := *a
	d.previews.Add(1)
	d.mu.Unlock()

	go d.renderPreview(added.ID, contentType, data)

	return added, nil
}

func (d *Dispatcher) renderPreview(id, contentType string, data []byte) {
	defer d.previews.Done()

	uri := dataURI(contentType, data)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	for _, a := range d.attachments {
		if a.ID == id {
			a.Preview = uri
			return
		}
	}
}

// WaitPreviews blocks until every started preview render has finished.
func (d *Dispatcher) WaitPreviews() {
	d.previews.Wait()
}

func (d *Dispatcher) RemoveAttachment(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, a := range d.attachments {
		if a.ID == id {
			d.attachments = append(d.attachments[:i], d.attachments[i+1:]...)
			return true
		}
	}
	return false
}

func (d *Dispatcher) ClearAttachments() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attachments = nil
}

// Close tears the dispatcher down. Calls still in flight resolve their log
// entries but no longer touch the input buffer or the queue.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.input = ""
	d.attachments = nil
}

// ─────────────────────────────────────────
// Entry points
// ─────────────────────────────────────────

// Send classifies the input buffer and runs the chosen branch. The error is
// only for calls that were rejected before doing anything (empty input,
// busy, closed); branch failures are reported in the Outcome.
func (d *Dispatcher) Send(ctx context.Context) (*Outcome, error) {
	text, atts, err := d.acquire(true)
	if err != nil {
		return nil, err
	}
	defer d.release()

	intent := Classify(text, atts)

	observability.LoggerFromContext(ctx).Info("dispatching utterance",
		"intent", intent.Kind(),
		"attachments", len(atts),
	)

	switch in := intent.(type) {
	case Navigation:
		return d.navigate(ctx, in, text), nil
	case WeatherQuery:
		return d.weatherReport(ctx, in, text), nil
	case PlainChat:
		return d.chat(ctx, in, text), nil
	default:
		return d.chat(ctx, PlainChat{Text: text, Attachments: atts}, text), nil
	}
}

// Search runs the web-search action on the input buffer.
func (d *Dispatcher) Search(ctx context.Context) (*Outcome, error) {
	text, _, err := d.acquire(false)
	if err != nil {
		return nil, err
	}
	defer d.release()

	observability.LoggerFromContext(ctx).Info("dispatching web search")
	return d.webSearch(ctx, WebSearchTrigger{Query: text}, text), nil
}

// GenerateImage uses the input buffer as an image prompt.
func (d *Dispatcher) GenerateImage(ctx context.Context) (*Outcome, error) {
	text, _, err := d.acquire(false)
	if err != nil {
		return nil, err
	}
	defer d.release()

	observability.LoggerFromContext(ctx).Info("dispatching image generation")
	return d.generateImage(ctx, text), nil
}

// acquire snapshots the input (and optionally the queue) and marks the
// dispatcher busy.
func (d *Dispatcher) acquire(withAttachments bool) (string, []Attachment, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return "", nil, ErrClosed
	}
	if d.busy {
		return "", nil, domain.ErrBusy
	}

	text := strings.TrimSpace(d.input)
	var atts []Attachment
	if withAttachments {
		atts = d.snapshotAttachments()
	}
	if text == "" && len(atts) == 0 {
		return "", nil, errNothingToSend
	}

	d.busy = true
	d.phase = Phase{}
	return text, atts, nil
}

func (d *Dispatcher) release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.busy = false
}

// ─────────────────────────────────────────
// State helpers
// ─────────────────────────────────────────

func (d *Dispatcher) snapshotAttachments() []Attachment {
	out := make([]Attachment, 0, len(d.attachments))
	for _, a := range d.attachments {
		out = append(out, *a)
	}
	return out
}

// clearInput empties the buffer unless the user changed it meanwhile.
func (d *Dispatcher) clearInput(sent string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if strings.TrimSpace(d.input) == sent {
		d.input = ""
	}
}

func (d *Dispatcher) dropAttachments(sent []Attachment) {
	if len(sent) == 0 {
		return
	}
	ids := make(map[string]bool, len(sent))
	for _, a := range sent {
		ids[a.ID] = true
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	kept := d.attachments[:0]
	for _, a := range d.attachments {
		if !ids[a.ID] {
			kept = append(kept, a)
		}
	}
	d.attachments = kept
}

func (d *Dispatcher) setPhase(p Phase) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.phase = p
}

func (d *Dispatcher) notify(ctx context.Context, title, desc string) {
	d.deps.Notifier.Notify(ctx, domain.Notification{
		Kind:        domain.NotificationDestructive,
		Title:       title,
		Description: desc,
		CreatedAt:   d.now(),
	})
}
