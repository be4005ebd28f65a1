package events

import (
	"strconv"
	"strings"
	"sync"

	"vaultchain/core/types"
)

const (
	defaultFeedHistory = 1024
	subscriberBuffer   = 64
)

// Update is one committed event as seen by feed subscribers. Cursor resumes
// a subscription right after this update.
type Update struct {
	Sequence uint64       `json:"sequence"`
	Cursor   string       `json:"cursor"`
	Event    *types.Event `json:"event"`
}

// Feed fans committed events out to live subscribers and keeps a bounded
// history so reconnecting clients can resume from a cursor. Slow subscribers
// miss updates instead of blocking the publisher.
type Feed struct {
	mu      sync.Mutex
	limit   int
	seq     uint64
	nextID  uint64
	history []Update
	subs    map[uint64]chan Update
}

// NewFeed returns a feed retaining up to history updates. Non-positive values
// select the default.
func NewFeed(history int) *Feed {
	if history <= 0 {
		history = defaultFeedHistory
	}
	return &Feed{limit: history, subs: make(map[uint64]chan Update)}
}

// Emit implements Emitter. Only typed payloads are published.
func (f *Feed) Emit(evt Event) {
	if f == nil || evt == nil {
		return
	}
	p, ok := evt.(Payload)
	if !ok || p.Event() == nil {
		return
	}

	f.mu.Lock()
	f.seq++
	update := Update{Sequence: f.seq, Cursor: strconv.FormatUint(f.seq, 10), Event: cloneEvent(p.Event())}
	f.history = append(f.history, update)
	if len(f.history) > f.limit {
		trimmed := make([]Update, f.limit)
		copy(trimmed, f.history[len(f.history)-f.limit:])
		f.history = trimmed
	}
	subscribers := make([]chan Update, 0, len(f.subs))
	for _, ch := range f.subs {
		subscribers = append(subscribers, ch)
	}
	f.mu.Unlock()

	for _, ch := range subscribers {
		select {
		case ch <- update:
		default:
		}
	}
}

// Subscribe registers a subscriber. The returned backlog holds retained
// updates after cursor; an empty cursor starts at the live edge. cancel must
// be called to release the subscription.
func (f *Feed) Subscribe(cursor string) (<-chan Update, func(), []Update) {
	updates := make(chan Update, subscriberBuffer)

	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = updates
	var backlog []Update
	if trimmed := strings.TrimSpace(cursor); trimmed != "" {
		if since, err := strconv.ParseUint(trimmed, 10, 64); err == nil {
			for _, u := range f.history {
				if u.Sequence > since {
					backlog = append(backlog, u)
				}
			}
		}
	}
	f.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
		})
	}
	return updates, cancel, backlog
}

// Subscribers reports the number of live subscriptions.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func cloneEvent(evt *types.Event) *types.Event {
	out := types.NewEvent(evt.Type)
	for k, v := range evt.Attributes {
		out.Attributes[k] = v
	}
	return out
}
