package poll

import "time"

// applyVote records one vote on p. It reports whether this was the poll's
// first vote, in which case StartTime has been stamped and the caller must
// schedule closure. The caller holds the poll's lock.
func applyVote(p *Poll, option string, now time.Time) (first bool, err error) {
	if p.IsClosed {
		return false, ErrPollClosed
	}
	if !p.HasOption(option) {
		return false, ErrInvalidOption
	}

	if p.StartTime == nil {
		t := now
		p.StartTime = &t
		first = true
	}

	p.Votes[option]++
	return first, nil
}
