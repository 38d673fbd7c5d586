package broadcast

// Event kinds delivered to poll subscribers.
const (
	EventVoteCast   = "vote_cast"
	EventPollClosed = "poll_closed"
)

// Event is the wire payload pushed to every subscriber of a poll. VoteCast
// events carry the voted option and the full tally; PollClosed events carry
// the final tally under Results.
type Event struct {
	Type    string         `json:"type"`
	Option  string         `json:"option,omitempty"`
	Votes   map[string]int `json:"votes,omitempty"`
	Results map[string]int `json:"results,omitempty"`
}

func VoteCast(option string, votes map[string]int) Event {
	return Event{Type: EventVoteCast, Option: option, Votes: votes}
}

func PollClosed(results map[string]int) Event {
	return Event{Type: EventPollClosed, Results: results}
}
