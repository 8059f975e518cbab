package cache

import "time"

// Entry is a single cached analysis result. Entries are created on
// first successful analysis and only their access bookkeeping changes
// afterwards; the payload is never rewritten.
type Entry struct {
	Key            string    `json:"key"`
	Payload        string    `json:"payload"`
	CreatedAt      time.Time `json:"createdAt"`
	LastAccessedAt time.Time `json:"lastAccessedAt"`
	AccessCount    int64     `json:"accessCount"`
}

// expired reports whether the entry's TTL has elapsed at now. TTL is
// measured from creation; access never extends it.
func (e *Entry) expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.CreatedAt) > ttl
}

func (e *Entry) clone() *Entry {
	c := *e
	return &c
}
