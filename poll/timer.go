package poll

import (
	"context"
	"sync"
	"time"

	"github.com/Eppu/micro-poll/broadcast"

	log "github.com/sirupsen/logrus"
)

// Timer drives each poll's one way transition to closed. A deferred task per
// poll id fires at the deadline; the entry is removed on fire. CloseNow
// re-fetches under the poll's lock and no-ops on an already closed poll, so
// a timer fire racing a lazy closure check is harmless and never needs an
// explicit cancel.
type Timer struct {
	store Store
	hub   *broadcast.Hub
	locks *pollLocks

	mtx     sync.Mutex
	pending map[string]*time.Timer
}

func newTimer(store Store, hub *broadcast.Hub, locks *pollLocks) *Timer {
	return &Timer{
		store:   store,
		hub:     hub,
		locks:   locks,
		pending: map[string]*time.Timer{},
	}
}

// Schedule arranges closure of p once its remaining time elapses. Called
// right after StartTime is first stamped, and again for every open started
// poll on restart. An overdue poll is closed on the spot.
func (t *Timer) Schedule(p *Poll) {
	id := p.ID.Hex()
	remaining := time.Until(p.Deadline())
	if remaining <= 0 {
		if err := t.CloseNow(context.Background(), id); err != nil {
			log.Errorf("timer, poll=%s, err=%v", id, err)
		}
		return
	}

	t.mtx.Lock()
	if _, ok := t.pending[id]; ok {
		t.mtx.Unlock()
		return
	}
	t.pending[id] = time.AfterFunc(remaining, func() {
		t.mtx.Lock()
		delete(t.pending, id)
		t.mtx.Unlock()
		if err := t.CloseNow(context.Background(), id); err != nil {
			log.Errorf("timer, poll=%s, err=%v", id, err)
		}
	})
	t.mtx.Unlock()

	log.Infof("poll %s closes in %v", id, remaining)
}

// CloseNow closes the poll if it is still open. Idempotent: a second call,
// or a call racing the lazy closure check, finds the poll closed and does
// nothing.
func (t *Timer) CloseNow(ctx context.Context, id string) error {
	unlock := t.locks.Lock(id)
	defer unlock()

	p, err := t.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if p.IsClosed {
		return nil
	}
	return t.close(ctx, p)
}

// CheckAndClose is the lazy closure fallback run on every read and vote. The
// caller holds the poll's lock. Returns p with closure applied in place when
// the deadline has passed.
func (t *Timer) CheckAndClose(ctx context.Context, p *Poll) (*Poll, error) {
	if p.IsClosed || p.StartTime == nil {
		return p, nil
	}
	if !p.Expired(time.Now()) {
		return p, nil
	}
	if err := t.close(ctx, p); err != nil {
		return p, err
	}
	log.Infof("poll %s closed through check after %d seconds", p.ID.Hex(), p.TimeLimit)
	return p, nil
}

// close marks p closed, persists it and broadcasts the final tally. The
// caller holds the poll's lock. A failed broadcast is logged only; the store
// is the source of truth and subscribers catch up on their next fetch.
func (t *Timer) close(ctx context.Context, p *Poll) error {
	p.IsClosed = true
	if err := t.store.Save(ctx, p); err != nil {
		return err
	}
	if err := t.hub.Publish(ctx, p.ID.Hex(), broadcast.PollClosed(p.Votes)); err != nil {
		log.Errorf("broadcast, poll=%s, err=%v", p.ID.Hex(), err)
	}
	return nil
}

// RestartAll rebuilds timers from persisted state after a process restart.
// Open polls that never received a vote are skipped; their countdown starts
// with the first vote.
func (t *Timer) RestartAll(ctx context.Context) error {
	open, err := t.store.ListOpen(ctx)
	if err != nil {
		return err
	}

	for _, p := range open {
		if p.StartTime == nil {
			log.Infof("skipping poll %s, waiting for first vote", p.ID.Hex())
			continue
		}
		t.Schedule(p)
	}
	return nil
}

func (t *Timer) scheduled(id string) bool {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	_, ok := t.pending[id]
	return ok
}
