package live

import (
	"context"
	"sync"
)

const (
	defaultBuffer = 64
	defaultRetain = 256
)

// MemoryHub — Hub в памяти процесса.
//
// История завершённых run хранится для последних Retain run.
// Подписчик, не успевающий читать, отключается.
type MemoryHub struct {
	mu       sync.Mutex
	runs     map[string]*memoryRun
	finished []string
	retain   int
	buffer   int
	closed   bool
}

type memoryRun struct {
	seq     int64
	history []Event
	subs    map[*subscriber]struct{}
	done    bool
}

type subscriber struct {
	ch     chan Event
	closed chan struct{}
}

func (s *subscriber) close() {
	close(s.ch)
	close(s.closed)
}

// MemoryConfig — настройки MemoryHub.
type MemoryConfig struct {
	// Retain — сколько завершённых run хранить. По умолчанию 256.
	Retain int

	// Buffer — размер буфера подписчика сверх истории. По умолчанию 64.
	Buffer int
}

// NewMemoryHub создаёт MemoryHub.
func NewMemoryHub(cfg MemoryConfig) *MemoryHub {
	if cfg.Retain <= 0 {
		cfg.Retain = defaultRetain
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = defaultBuffer
	}
	return &MemoryHub{
		runs:   make(map[string]*memoryRun),
		retain: cfg.Retain,
		buffer: cfg.Buffer,
	}
}

func (h *MemoryHub) run(runID string) *memoryRun {
	r, ok := h.runs[runID]
	if !ok {
		r = &memoryRun{subs: make(map[*subscriber]struct{})}
		h.runs[runID] = r
	}
	return r
}

// Publish реализует Hub.
func (h *MemoryHub) Publish(_ context.Context, event Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}
	r := h.run(event.RunID)
	if r.done {
		return nil
	}

	r.seq++
	event.Seq = r.seq
	r.history = append(r.history, event)

	for sub := range r.subs {
		select {
		case sub.ch <- event:
		default:
			// Отставший подписчик отключается без терминального события.
			delete(r.subs, sub)
			sub.close()
		}
	}

	if event.Terminal() {
		r.done = true
		for sub := range r.subs {
			sub.close()
		}
		clear(r.subs)
		h.finished = append(h.finished, event.RunID)
		for len(h.finished) > h.retain {
			delete(h.runs, h.finished[0])
			h.finished = h.finished[1:]
		}
	}
	return nil
}

// Subscribe реализует Hub.
func (h *MemoryHub) Subscribe(ctx context.Context, runID string) (<-chan Event, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrClosed
	}
	r := h.run(runID)

	sub := &subscriber{
		ch:     make(chan Event, len(r.history)+h.buffer),
		closed: make(chan struct{}),
	}
	for _, e := range r.history {
		sub.ch <- e
	}
	if r.done {
		sub.close()
		return sub.ch, nil
	}
	r.subs[sub] = struct{}{}

	go func() {
		select {
		case <-sub.closed:
		case <-ctx.Done():
			h.unsubscribe(runID, sub)
		}
	}()
	return sub.ch, nil
}

func (h *MemoryHub) unsubscribe(runID string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.runs[runID]
	if !ok {
		return
	}
	if _, ok := r.subs[sub]; !ok {
		return
	}
	delete(r.subs, sub)
	sub.close()
	if len(r.subs) == 0 && len(r.history) == 0 {
		delete(h.runs, runID)
	}
}

// Close отключает всех подписчиков.
func (h *MemoryHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for _, r := range h.runs {
		for sub := range r.subs {
			sub.close()
		}
		clear(r.subs)
	}
}
