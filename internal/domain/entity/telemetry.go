package entity

import (
	"fmt"
	"time"
)

// FieldCount is the maximum number of labeled fields a channel can carry.
const FieldCount = 8

// Channel describes a telemetry channel: its identity and the labels of
// its numeric fields. Unlabeled fields are empty strings.
type Channel struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Field1      string     `json:"field1,omitempty"`
	Field2      string     `json:"field2,omitempty"`
	Field3      string     `json:"field3,omitempty"`
	Field4      string     `json:"field4,omitempty"`
	Field5      string     `json:"field5,omitempty"`
	Field6      string     `json:"field6,omitempty"`
	Field7      string     `json:"field7,omitempty"`
	Field8      string     `json:"field8,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
	LastEntryID int64      `json:"last_entry_id,omitempty"`
}

// FieldLabels returns the non-empty field labels keyed by their wire name
// ("field1".."field8").
func (c *Channel) FieldLabels() map[string]string {
	labels := make(map[string]string, FieldCount)
	for i, label := range []string{c.Field1, c.Field2, c.Field3, c.Field4, c.Field5, c.Field6, c.Field7, c.Field8} {
		if label != "" {
			labels[fmt.Sprintf("field%d", i+1)] = label
		}
	}
	return labels
}

// Feed is one timestamped reading across a channel's fields.
// Field values arrive as strings on the wire (the API renders numbers and
// nulls as strings); conversion to numbers is the consumer's concern.
type Feed struct {
	CreatedAt time.Time `json:"created_at"`
	EntryID   int64     `json:"entry_id"`
	Field1    *string   `json:"field1,omitempty"`
	Field2    *string   `json:"field2,omitempty"`
	Field3    *string   `json:"field3,omitempty"`
	Field4    *string   `json:"field4,omitempty"`
	Field5    *string   `json:"field5,omitempty"`
	Field6    *string   `json:"field6,omitempty"`
	Field7    *string   `json:"field7,omitempty"`
	Field8    *string   `json:"field8,omitempty"`
}

// FieldValue returns the value of field n (1-based) and whether it was present.
func (f *Feed) FieldValue(n int) (string, bool) {
	fields := []*string{f.Field1, f.Field2, f.Field3, f.Field4, f.Field5, f.Field6, f.Field7, f.Field8}
	if n < 1 || n > len(fields) || fields[n-1] == nil {
		return "", false
	}
	return *fields[n-1], true
}

// Meta is provenance metadata attached to a returned payload. It describes
// how the payload was obtained, distinct from the payload's business data.
type Meta struct {
	// Cached is true when the payload was served from the cache rather
	// than a live response.
	Cached bool `json:"cached,omitempty"`

	// Expired is true when a cached payload was older than the cache TTL
	// at the time it was served.
	Expired bool `json:"expired,omitempty"`

	// ViaProxy is true when the payload was obtained through the proxy
	// transport rather than the direct path.
	ViaProxy bool `json:"via_proxy,omitempty"`

	// Historical is true for payloads produced by a date-range fetch.
	Historical bool `json:"historical,omitempty"`

	// StoredAt is the time the payload was originally written to the
	// cache. Zero for live responses.
	StoredAt time.Time `json:"stored_at,omitempty"`
}

// ChannelFeed is the payload moved through the system: a channel descriptor
// plus its ordered feed entries. Once returned by the client it is treated
// as immutable; degraded results are shallow copies carrying different Meta.
type ChannelFeed struct {
	Channel Channel `json:"channel"`
	Feeds   []Feed  `json:"feeds"`
	Meta    Meta    `json:"meta"`
}

// Validate checks that the payload has a channel descriptor.
// A response without one is structurally invalid and must not be treated
// as a successful fetch.
func (p *ChannelFeed) Validate() error {
	if p.Channel.ID == 0 && p.Channel.Name == "" {
		return &InvalidResponseError{Reason: "response has no channel descriptor"}
	}
	return nil
}

// WithMeta returns a shallow copy of the payload carrying the given Meta.
// The feed slice is shared; feeds are immutable once fetched.
func (p *ChannelFeed) WithMeta(meta Meta) *ChannelFeed {
	cp := *p
	cp.Meta = meta
	return &cp
}
