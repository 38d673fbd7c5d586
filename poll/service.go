package poll

import (
	"context"
	"strings"
	"time"

	"github.com/Eppu/micro-poll/broadcast"

	log "github.com/sirupsen/logrus"
)

const (
	maxQuestionLen = 64
	maxOptionLen   = 64
	maxOptions     = 15
)

// Service orchestrates poll creation, reads and votes. All mutating work on
// one poll runs under that poll's lock, held from fetch through save and
// publish, so concurrent votes on the same poll never interleave their
// read-modify-write sequences.
type Service struct {
	store Store
	hub   *broadcast.Hub
	locks *pollLocks
	timer *Timer
}

func NewService(store Store, hub *broadcast.Hub) *Service {
	locks := newPollLocks()
	return &Service{
		store: store,
		hub:   hub,
		locks: locks,
		timer: newTimer(store, hub, locks),
	}
}

// RestartTimers reschedules closure for every started open poll. Called once
// at process startup, before traffic is accepted.
func (s *Service) RestartTimers(ctx context.Context) error {
	return s.timer.RestartAll(ctx)
}

// CreatePoll validates the input and persists a new poll with a zeroed tally
// and no start time. The countdown does not begin until the first vote.
func (s *Service) CreatePoll(ctx context.Context, question string, options []string, timeLimit int) (string, error) {
	if err := validateCreate(question, options, timeLimit); err != nil {
		return "", err
	}

	votes := make(map[string]int, len(options))
	for _, o := range options {
		votes[o] = 0
	}

	p := &Poll{
		Question:  question,
		Options:   options,
		TimeLimit: timeLimit,
		CreatedAt: time.Now(),
		Votes:     votes,
	}

	id, err := s.store.Create(ctx, p)
	if err != nil {
		return "", err
	}
	log.Infof("poll %s created, %d options, limit %ds", id.Hex(), len(options), timeLimit)
	return id.Hex(), nil
}

// GetPoll fetches a poll, applying lazy closure first so a caller never
// observes an open poll past its deadline.
func (s *Service) GetPoll(ctx context.Context, id string) (*Poll, error) {
	oid, err := ParseID(id)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(oid.Hex())
	defer unlock()

	p, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.timer.CheckAndClose(ctx, p)
}

// CastVote applies one vote. The first vote on a poll stamps its start time
// and schedules closure; with a zero time limit that schedule closes the
// poll immediately after the vote lands.
func (s *Service) CastVote(ctx context.Context, id, option string) (*Poll, error) {
	oid, err := ParseID(id)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(oid.Hex())
	p, err := s.store.Get(ctx, id)
	if err != nil {
		unlock()
		return nil, err
	}

	p, err = s.timer.CheckAndClose(ctx, p)
	if err != nil {
		unlock()
		return nil, err
	}

	first, err := applyVote(p, option, time.Now())
	if err != nil {
		unlock()
		return nil, err
	}

	if err := s.store.Save(ctx, p); err != nil {
		unlock()
		return nil, err
	}

	if err := s.hub.Publish(ctx, oid.Hex(), broadcast.VoteCast(option, p.Votes)); err != nil {
		log.Errorf("broadcast, poll=%s, err=%v", oid.Hex(), err)
	}
	unlock()

	if first {
		log.Infof("poll %s started", oid.Hex())
		s.timer.Schedule(p)
	}
	return p, nil
}

func validateCreate(question string, options []string, timeLimit int) error {
	if strings.TrimSpace(question) == "" {
		return validationErr("question", "question is required")
	}
	if len(question) > maxQuestionLen {
		return validationErr("question", "question is too long")
	}
	if len(options) < 2 {
		return validationErr("options", "at least 2 options are required")
	}
	if len(options) > maxOptions {
		return validationErr("options", "too many options")
	}
	seen := make(map[string]struct{}, len(options))
	for _, o := range options {
		if strings.TrimSpace(o) == "" {
			return validationErr("options", "options must not be blank")
		}
		if len(o) > maxOptionLen {
			return validationErr("options", "option is too long")
		}
		if _, dup := seen[o]; dup {
			return validationErr("options", "options must be distinct")
		}
		seen[o] = struct{}{}
	}
	if timeLimit < 0 {
		return validationErr("timeLimit", "time limit must not be negative")
	}
	return nil
}
