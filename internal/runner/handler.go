package runner

import (
	"sync"

	"github.com/alcrishub/postman-runtime/internal/prepare"
	"github.com/alcrishub/postman-runtime/internal/types"
)

// ItemEvent is the completion notification of one item
type ItemEvent struct {
	Err      error
	Index    int
	Name     string
	Response *types.Response
	Request  *prepare.PreparedRequest
	Trace    *types.ExecutionTrace
}

// Handler observes a run. Calls are made synchronously from the run goroutine.
type Handler interface {
	OnStart()
	OnItem(ItemEvent)
	OnDone(err error)
}

// HandlerFuncs adapts plain functions to Handler; nil fields are skipped
type HandlerFuncs struct {
	Start func()
	Item  func(ItemEvent)
	Done  func(error)
}

func (h HandlerFuncs) OnStart() {
	if h.Start != nil {
		h.Start()
	}
}

func (h HandlerFuncs) OnItem(ev ItemEvent) {
	if h.Item != nil {
		h.Item(ev)
	}
}

func (h HandlerFuncs) OnDone(err error) {
	if h.Done != nil {
		h.Done(err)
	}
}

// Handlers fans every call out in order
type Handlers []Handler

func (hs Handlers) OnStart() {
	for _, h := range hs {
		h.OnStart()
	}
}

func (hs Handlers) OnItem(ev ItemEvent) {
	for _, h := range hs {
		h.OnItem(ev)
	}
}

func (hs Handlers) OnDone(err error) {
	for _, h := range hs {
		h.OnDone(err)
	}
}

// EventKind identifies a lifecycle event
type EventKind int

const (
	EventStart EventKind = iota
	EventItem
	EventDone
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventItem:
		return "item"
	case EventDone:
		return "done"
	default:
		return "unknown"
	}
}

// Event is one lifecycle notification
type Event struct {
	Kind EventKind
	Item ItemEvent
	Err  error
}

// Recorder keeps every event in order
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) add(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *Recorder) OnStart()            { r.add(Event{Kind: EventStart}) }
func (r *Recorder) OnItem(ev ItemEvent) { r.add(Event{Kind: EventItem, Item: ev}) }
func (r *Recorder) OnDone(err error)    { r.add(Event{Kind: EventDone, Err: err}) }

// Events returns a copy of the recorded events
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Items returns the recorded item events
func (r *Recorder) Items() []ItemEvent {
	var out []ItemEvent
	for _, ev := range r.Events() {
		if ev.Kind == EventItem {
			out = append(out, ev.Item)
		}
	}
	return out
}

// Count returns how many events of kind were recorded
func (r *Recorder) Count(kind EventKind) int {
	n := 0
	for _, ev := range r.Events() {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// ChannelHandler delivers events on a channel and closes it after OnDone.
// The channel must be drained or the run blocks once the buffer is full.
// A ChannelHandler serves one run; events after OnDone are dropped.
type ChannelHandler struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

// NewChannelHandler creates a handler with a buffer of size buf
func NewChannelHandler(buf int) *ChannelHandler {
	return &ChannelHandler{ch: make(chan Event, buf)}
}

// Events returns the receive side of the channel
func (h *ChannelHandler) Events() <-chan Event { return h.ch }

func (h *ChannelHandler) send(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.ch <- ev
	if ev.Kind == EventDone {
		h.closed = true
		close(h.ch)
	}
}

func (h *ChannelHandler) OnStart()            { h.send(Event{Kind: EventStart}) }
func (h *ChannelHandler) OnItem(ev ItemEvent) { h.send(Event{Kind: EventItem, Item: ev}) }
func (h *ChannelHandler) OnDone(err error)    { h.send(Event{Kind: EventDone, Err: err}) }
