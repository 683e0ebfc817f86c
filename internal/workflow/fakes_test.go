package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

type fakeText struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func (f *fakeText) Complete(_ context.Context, system, user string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kind := promptKind(system)
	f.calls = append(f.calls, kind)
	if err := f.fail[kind]; err != nil {
		return "", err
	}
	return fmt.Sprintf("  %s for [%s]  ", kind, user), nil
}

func (f *fakeText) count(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == kind {
			n++
		}
	}
	return n
}

func promptKind(system string) string {
	switch {
	case strings.Contains(system, "marketer"):
		return "branding"
	case strings.Contains(system, "creative director"):
		return "visuals"
	case strings.Contains(system, "copywriter"):
		return "post"
	}
	return "unknown"
}

type fakeImages struct {
	err error
}

func (f *fakeImages) Generate(_ context.Context, prompt string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte("png:" + prompt), nil
}

type memStore struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{files: make(map[string][]byte)}
}

func (m *memStore) Save(_ context.Context, clientID string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path := "generated_images/" + clientID + "_image.png"
	m.files[path] = data
	return path, nil
}

func (m *memStore) Load(_ context.Context, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[path]
	if !ok {
		return nil, errors.New("no such file")
	}
	return data, nil
}

type fakePublisher struct {
	mu       sync.Mutex
	captions []string
	files    []string
}

func (f *fakePublisher) Publish(_ context.Context, caption, filename string, _ []byte) PostResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.captions = append(f.captions, caption)
	f.files = append(f.files, filename)
	return PostResult{Status: PostStatusSuccess, Message: "Posted successfully to Facebook!", PostID: "123_456"}
}

func (f *fakePublisher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.captions)
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSink) Emit(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingSink) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recordingSink) ofType(t EventType) []Event {
	var out []Event
	for _, ev := range r.snapshot() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recordingSink) updateSteps() []string {
	var out []string
	for _, ev := range r.ofType(EventUpdate) {
		out = append(out, ev.Step)
	}
	return out
}

type harness struct {
	text      *fakeText
	images    *fakeImages
	store     *memStore
	publisher *fakePublisher
	engine    *Engine
}

func newHarness(opts ...EngineOption) (*harness, error) {
	h := &harness{
		text:      &fakeText{fail: map[string]error{}},
		images:    &fakeImages{},
		store:     newMemStore(),
		publisher: &fakePublisher{},
	}
	g, err := New(Dependencies{
		Text:      h.text,
		Images:    h.images,
		Store:     h.store,
		Publisher: h.publisher,
	})
	if err != nil {
		return nil, err
	}
	h.engine = NewEngine(g, opts...)
	return h, nil
}

func strptr(s string) *string { return &s }

func fullDetails() Details {
	return Details{
		Location: strptr("Austin"),
		Price:    strptr("$500k"),
		Bedrooms: strptr("3"),
		Features: []string{"pool", "garage"},
	}
}
