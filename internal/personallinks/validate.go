package personallinks

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
)

const maxParticipantIDLength = 128

var (
	surveyIDPattern      = regexp.MustCompile(`^SV_[A-Za-z0-9]+$`)
	participantIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:@-]+$`)
)

// Accounts maps each served account to its default contact list id.
type Accounts map[string]string

// Has reports whether the account is served.
func (a Accounts) Has(account string) bool {
	_, ok := a[account]
	return ok
}

// ContactList returns override if set, otherwise the account default.
func (a Accounts) ContactList(account, override string) string {
	if override != "" {
		return override
	}
	return a[account]
}

// Names returns the account names in sorted order.
func (a Accounts) Names() []string {
	names := make([]string, 0, len(a))
	for name := range a {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validator checks identifiers before any store access.
type Validator struct {
	accounts    Accounts
	requireUUID bool
}

// NewValidator creates a Validator. When requireUUID is set, participant ids
// must also parse as UUIDs.
func NewValidator(accounts Accounts, requireUUID bool) *Validator {
	return &Validator{accounts: accounts, requireUUID: requireUUID}
}

// ValidatePool checks the account and survey id.
func (v *Validator) ValidatePool(account, surveyID string) error {
	if account == "" {
		return &ValidationError{Field: "account", Reason: "is required"}
	}
	if !v.accounts.Has(account) {
		return &ValidationError{
			Field:  "account",
			Reason: fmt.Sprintf("%q is not supported; valid values are %s", account, strings.Join(v.accounts.Names(), ",")),
		}
	}
	if surveyID == "" {
		return &ValidationError{Field: "survey_id", Reason: "is required"}
	}
	if !surveyIDPattern.MatchString(surveyID) {
		return &ValidationError{Field: "survey_id", Reason: fmt.Sprintf("%q is not a survey id", surveyID)}
	}
	return nil
}

// ValidateRequest checks every field of an allocation request.
func (v *Validator) ValidateRequest(req Request) error {
	if err := v.ValidatePool(req.Account, req.SurveyID); err != nil {
		return err
	}

	id := req.ParticipantID
	switch {
	case id == "":
		return &ValidationError{Field: "participant_id", Reason: "is required"}
	case len(id) > maxParticipantIDLength:
		return &ValidationError{Field: "participant_id", Reason: fmt.Sprintf("longer than %d characters", maxParticipantIDLength)}
	case !participantIDPattern.MatchString(id):
		return &ValidationError{Field: "participant_id", Reason: "contains unsupported characters"}
	}

	if v.requireUUID {
		if _, err := uuid.Parse(id); err != nil {
			return &ValidationError{Field: "participant_id", Reason: "is not a valid UUID"}
		}
	}
	return nil
}

// ValidateReplenish checks a replenish request after the contact list has
// been resolved.
func (v *Validator) ValidateReplenish(req ReplenishRequest) error {
	if err := v.ValidatePool(req.Account, req.SurveyID); err != nil {
		return err
	}
	if req.ContactListID == "" {
		return &ValidationError{Field: "contact_list_id", Reason: "is required and the account has no default"}
	}
	return nil
}
