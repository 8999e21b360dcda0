package splitledger

import (
	"context"
	"iter"
	"sync"
	"time"

	"github.com/xraph/splitledger/id"
	"github.com/xraph/splitledger/session"
)

// Watch returns the session's snapshots: the current one first, then one
// per committed write with a newer version. Slow consumers skip straight to
// the latest snapshot. The sequence ends when ctx is done, the consumer
// stops, or the ledger is stopped; it may be ranged over again to restart.
func (l *Ledger) Watch(ctx context.Context, sessionID id.SessionID) iter.Seq2[*session.Session, error] {
	return func(yield func(*session.Session, error) bool) {
		sub := l.watchers.subscribe(sessionID.String())
		defer l.watchers.unsubscribe(sub)

		s, err := l.GetSession(ctx, sessionID)
		if err != nil {
			yield(nil, err)
			return
		}
		last := s.Version
		if !yield(s, nil) {
			return
		}

		var poll <-chan time.Time
		if l.watchPoll > 0 {
			t := time.NewTicker(l.watchPoll)
			defer t.Stop()
			poll = t.C
		}

		for {
			var next *session.Session
			select {
			case <-ctx.Done():
				return
			case snap, ok := <-sub.ch:
				if !ok {
					return
				}
				next = snap
			case <-poll:
				snap, err := l.GetSession(ctx, sessionID)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					if !yield(nil, err) {
						return
					}
					continue
				}
				next = snap
			}

			if next.Version <= last {
				continue
			}
			last = next.Version
			if !yield(next.Clone(), nil) {
				return
			}
		}
	}
}

// broker fans committed snapshots out to watchers. Each subscriber holds at
// most one pending snapshot; a newer one replaces it.
type broker struct {
	mu     sync.Mutex
	subs   map[string]map[*subscriber]struct{}
	closed bool
}

type subscriber struct {
	key string
	ch  chan *session.Session
}

func newBroker() *broker {
	return &broker{subs: make(map[string]map[*subscriber]struct{})}
}

func (b *broker) subscribe(key string) *subscriber {
	sub := &subscriber{key: key, ch: make(chan *session.Session, 1)}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(sub.ch)
		return sub
	}
	set, ok := b.subs[key]
	if !ok {
		set = make(map[*subscriber]struct{})
		b.subs[key] = set
	}
	set[sub] = struct{}{}
	return sub
}

func (b *broker) unsubscribe(sub *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.subs[sub.key]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	close(sub.ch)
	if len(set) == 0 {
		delete(b.subs, sub.key)
	}
}

// publish hands every subscriber of the session its own copy of s.
func (b *broker) publish(s *session.Session) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set := b.subs[s.ID.String()]
	if len(set) == 0 {
		return
	}
	snap := s.Clone()
	for sub := range set {
		select {
		case sub.ch <- snap:
			continue
		default:
		}
		// Drop the stale pending snapshot and retry once.
		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- snap:
		default:
		}
	}
}

func (b *broker) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for key, set := range b.subs {
		for sub := range set {
			close(sub.ch)
		}
		delete(b.subs, key)
	}
}

func (b *broker) count(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[key])
}
