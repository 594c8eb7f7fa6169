package types

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Query string parameters understood by the search endpoint
const (
	ParamContent     = "content"
	ParamCreatedFrom = "created_from"
	ParamCreatedTo   = "created_to"
	ParamAll         = "all"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// SearchCriteria selects tweets. An empty Content matches everything, a zero
// From or To leaves that side of the time range open. Both bounds are
// inclusive.
type SearchCriteria struct {
	Content string
	From    time.Time
	To      time.Time
	Global  bool
}

// ParseSearchCriteria reads criteria from search query parameters
func ParseSearchCriteria(q url.Values) (SearchCriteria, error) {
	c := SearchCriteria{
		Content: q.Get(ParamContent),
	}

	var err error
	if c.From, err = parseBound(q.Get(ParamCreatedFrom)); err != nil {
		return SearchCriteria{}, fmt.Errorf("invalid %s: %w", ParamCreatedFrom, err)
	}
	if c.To, err = parseBound(q.Get(ParamCreatedTo)); err != nil {
		return SearchCriteria{}, fmt.Errorf("invalid %s: %w", ParamCreatedTo, err)
	}

	switch strings.ToLower(q.Get(ParamAll)) {
	case "1", "true", "yes":
		c.Global = true
	}

	return c, nil
}

func parseBound(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch strings.ToLower(v) {
	case "", "-infinity", "infinity":
		return time.Time{}, nil
	}

	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", v)
}

// Values encodes the criteria for a call to a peer's search endpoint. The
// global flag is never forwarded: a peer answers from its own data only.
func (c SearchCriteria) Values() url.Values {
	q := url.Values{}
	if c.Content != "" {
		q.Set(ParamContent, c.Content)
	}
	if !c.From.IsZero() {
		q.Set(ParamCreatedFrom, c.From.UTC().Format(time.RFC3339Nano))
	}
	if !c.To.IsZero() {
		q.Set(ParamCreatedTo, c.To.UTC().Format(time.RFC3339Nano))
	}
	return q
}

// Local returns a copy of the criteria with the global flag cleared
func (c SearchCriteria) Local() SearchCriteria {
	c.Global = false
	return c
}

// Matches reports whether t satisfies the content filter and time range
func (c SearchCriteria) Matches(t Tweet) bool {
	if c.Content != "" && !strings.Contains(strings.ToLower(t.Tweet), strings.ToLower(c.Content)) {
		return false
	}
	return c.InRange(t.CreatedAt)
}

// InRange reports whether ts lies within the inclusive time range
func (c SearchCriteria) InRange(ts time.Time) bool {
	if !c.From.IsZero() && ts.Before(c.From) {
		return false
	}
	if !c.To.IsZero() && ts.After(c.To) {
		return false
	}
	return true
}
