package poll

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Poll is the persisted poll document. Votes is keyed by the entries of
// Options, established at creation and never grown or shrunk afterwards.
type Poll struct {
	ID        primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Question  string             `json:"question" bson:"question"`
	Options   []string           `json:"options" bson:"options"`
	TimeLimit int                `json:"timeLimit" bson:"time_limit"`
	CreatedAt time.Time          `json:"createdAt" bson:"created_at"`
	StartTime *time.Time         `json:"startTime,omitempty" bson:"start_time,omitempty"`
	IsClosed  bool               `json:"isClosed" bson:"is_closed"`
	Votes     map[string]int     `json:"votes" bson:"votes"`
}

// Deadline reports when the poll must be closed. Valid only once StartTime
// is set.
func (p *Poll) Deadline() time.Time {
	return p.StartTime.Add(time.Duration(p.TimeLimit) * time.Second)
}

// Expired reports whether the poll's time limit has elapsed. A poll with no
// start time never expires; its countdown begins with the first vote.
func (p *Poll) Expired(now time.Time) bool {
	if p.StartTime == nil {
		return false
	}
	return !now.Before(p.Deadline())
}

func (p *Poll) HasOption(option string) bool {
	for _, o := range p.Options {
		if o == option {
			return true
		}
	}
	return false
}
