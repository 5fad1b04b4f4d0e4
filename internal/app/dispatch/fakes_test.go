package dispatch_test

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/PabloGalante/chicha/internal/app/dispatch"
	"github.com/PabloGalante/chicha/internal/domain"
)

type logEntry struct {
	ID  domain.MessageID
	Msg dispatch.OutboundMessage
}

// memLog is a conversation log kept in a slice.
type memLog struct {
	mu        sync.Mutex
	seq       int
	entries   []logEntry
	appendErr error
}

func (l *memLog) Append(_ context.Context, msg dispatch.OutboundMessage) (domain.MessageID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.appendErr != nil {
		return "", l.appendErr
	}
	l.seq++
	id := domain.MessageID(fmt.Sprintf("m-%d", l.seq))
	l.entries = append(l.entries, logEntry{ID: id, Msg: msg})
	return id, nil
}

func (l *memLog) Replace(_ context.Context, id domain.MessageID, msg dispatch.OutboundMessage) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.entries {
		if l.entries[i].ID == id {
			l.entries[i].Msg = msg
			return nil
		}
	}
	return domain.ErrNotFound
}

func (l *memLog) Remove(_ context.Context, id domain.MessageID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.entries {
		if l.entries[i].ID == id {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (l *memLog) History(_ context.Context, limit int) ([]*domain.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*domain.Message, 0, len(l.entries))
	for _, e := range l.entries {
		author := domain.RoleUser
		if e.Msg.FromBot {
			author = domain.RoleBot
		}
		out = append(out, &domain.Message{ID: e.ID, Author: author, Text: e.Msg.Text, Processing: e.Msg.Processing})
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (l *memLog) messages() []dispatch.OutboundMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]dispatch.OutboundMessage, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e.Msg)
	}
	return out
}

type notifications struct {
	mu  sync.Mutex
	got []domain.Notification
}

func (n *notifications) Notify(_ context.Context, note domain.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, note)
}

func (n *notifications) titles() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.got))
	for _, note := range n.got {
		out = append(out, note.Title)
	}
	return out
}

type fakeLLM struct {
	mu    sync.Mutex
	calls []domain.ChatRequest
	reply *domain.ChatReply
	err   error

	// gate, when set, blocks GenerateReply until it is closed.
	gate    chan struct{}
	entered chan struct{}
}

func (f *fakeLLM) GenerateReply(ctx context.Context, req domain.ChatRequest) (*domain.ChatReply, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()

	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.reply != nil {
		return f.reply, nil
	}
	return &domain.ChatReply{Text: "echo: " + req.Prompt}, nil
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeWeather struct {
	calls  []string
	report *domain.WeatherReport
	err    error
}

func (f *fakeWeather) CurrentWeather(_ context.Context, location string) (*domain.WeatherReport, error) {
	f.calls = append(f.calls, location)
	if f.err != nil {
		return nil, f.err
	}
	return f.report, nil
}

type fakeSearch struct {
	calls   []string
	results []domain.SearchResult
	err     error
}

func (f *fakeSearch) Search(_ context.Context, query string) ([]domain.SearchResult, error) {
	f.calls = append(f.calls, query)
	return f.results, f.err
}

type fakeImages struct {
	calls []string
	url   string
	err   error
}

func (f *fakeImages) GenerateImage(_ context.Context, prompt string) (string, error) {
	f.calls = append(f.calls, prompt)
	return f.url, f.err
}

type upload struct {
	Path        string
	ContentType string
	Data        string
}

type fakeStorage struct {
	mu      sync.Mutex
	uploads []upload
	// failOn makes the n-th upload (1-based) fail.
	failOn int
}

func (f *fakeStorage) Upload(_ context.Context, path, contentType string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn > 0 && len(f.uploads)+1 == f.failOn {
		return "", errors.New("bucket unavailable")
	}
	f.uploads = append(f.uploads, upload{Path: path, ContentType: contentType, Data: string(data)})
	return "https://cdn.test/" + string(data), nil
}

type harness struct {
	d       *dispatch.Dispatcher
	log     *memLog
	notes   *notifications
	llm     *fakeLLM
	weather *fakeWeather
	search  *fakeSearch
	images  *fakeImages
	storage *fakeStorage
}

func newHarness() *harness {
	h := &harness{
		log:     &memLog{},
		notes:   &notifications{},
		llm:     &fakeLLM{},
		weather: &fakeWeather{},
		search:  &fakeSearch{},
		images:  &fakeImages{},
		storage: &fakeStorage{},
	}
	h.d = dispatch.New(dispatch.Deps{
		Log:          h.log,
		Notifier:     h.notes,
		LLM:          h.llm,
		Search:       h.search,
		Weather:      h.weather,
		Images:       h.images,
		Storage:      h.storage,
		HistoryLimit: 20,
	})
	return h
}
