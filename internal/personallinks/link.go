// Package personallinks allocates single-use survey distribution links to
// participants. Each (account, survey) pair owns a pool of links; a link is
// handed to at most one participant, the same participant always gets the
// same link back, and the pool is topped up before it runs dry.
package personallinks

import (
	"sort"
	"strings"
	"time"
)

// Status is the lifecycle state of a link. A link never goes back to StatusNew.
type Status string

const (
	StatusNew      Status = "new"
	StatusAssigned Status = "assigned"
)

// PoolID identifies the pool of one (account, survey) pair, stored as the
// account_survey_id partition key.
type PoolID string

// NewPoolID builds the pool id "{account}_{survey_id}".
func NewPoolID(account, surveyID string) PoolID {
	return PoolID(account + "_" + surveyID)
}

func (p PoolID) String() string { return string(p) }

// Account returns the account part of the pool id.
func (p PoolID) Account() string {
	account, _, _ := strings.Cut(string(p), "_")
	return account
}

// Link is a single distribution URL.
type Link struct {
	PoolID        PoolID         `json:"account_survey_id"`
	URL           string         `json:"url"`
	Status        Status         `json:"status"`
	Expires       time.Time      `json:"expires"`
	ParticipantID string         `json:"participant_id,omitempty"`
	Details       map[string]any `json:"details,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	AssignedAt    *time.Time     `json:"assigned_at,omitempty"`
}

// Assigned reports whether the link belongs to a participant.
func (l Link) Assigned() bool {
	return l.ParticipantID != ""
}

// SortBySoonestExpiry orders links by expiry, soonest first, breaking ties
// on URL so the order is reproducible. It sorts a copy.
func SortBySoonestExpiry(links []Link) []Link {
	sorted := make([]Link, len(links))
	copy(sorted, links)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Expires.Equal(sorted[j].Expires) {
			return sorted[i].Expires.Before(sorted[j].Expires)
		}
		return sorted[i].URL < sorted[j].URL
	})
	return sorted
}

// Request asks for the personal link of one participant.
type Request struct {
	Account       string
	SurveyID      string
	ParticipantID string
}

// PoolID returns the pool the request draws from.
func (r Request) PoolID() PoolID {
	return NewPoolID(r.Account, r.SurveyID)
}

// ReplenishRequest asks for a fresh batch of links to be minted for a pool.
// It is the payload of the create_personal_links event.
type ReplenishRequest struct {
	Account       string `json:"account"`
	SurveyID      string `json:"survey_id"`
	ContactListID string `json:"contact_list_id,omitempty"`
}

// PoolID returns the pool the request refills.
func (r ReplenishRequest) PoolID() PoolID {
	return NewPoolID(r.Account, r.SurveyID)
}

// DistributionLink is one link as reported by the survey platform.
type DistributionLink struct {
	URL     string
	Expires time.Time
	// Details holds every other field of the platform row, kept for audit.
	Details map[string]any
}
