package wellness

import (
	"context"
	"regexp"
	"strings"

	"github.com/hengadev/errsx"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

func isEmailValid(email string) bool {
	return email != "" && emailPattern.MatchString(email)
}

func isPhoneValid(phone string) bool {
	if phone == "" {
		return false
	}
	return strings.IndexFunc(phone, func(r rune) bool { return r >= '0' && r <= '9' }) >= 0
}

// Validation is the outcome of the pre-flight checks plus the partial
// resolution data they produce.
type Validation struct {
	OK             bool
	EmailValid     bool
	PhoneValid     bool
	LocationID     string
	PractitionerID string
	Message        string
}

type Validator struct {
	store RecordStore
}

func NewValidator(store RecordStore) *Validator {
	return &Validator{store: store}
}

// Validate runs every check and accumulates failures so the caller sees all
// problems at once. A failed practitioner lookup counts as invalid rather
// than aborting the run.
func (v *Validator) Validate(ctx context.Context, rec *WellnessRecord) Validation {
	result := Validation{
		EmailValid: isEmailValid(rec.Email),
		PhoneValid: isPhoneValid(rec.Phone),
		LocationID: rec.LocationID,
	}

	errs := make(errsx.Map)

	if !result.EmailValid && !result.PhoneValid {
		errs.Set("contact", "neither phone nor email is valid")
	}

	if rec.LocationID == "" {
		errs.Set("location", "no location_id in wellness record")
	}

	result.PractitionerID = v.resolvePractitioner(ctx, rec.ApprovedBy)
	if result.PractitionerID == "" {
		errs.Set("practitioner", "no matching practitioner in system")
	}

	if errs.IsEmpty() {
		result.OK = true
		return result
	}

	result.Message = errs.AsError().Error()
	return result
}

func (v *Validator) resolvePractitioner(ctx context.Context, approvedBy string) string {
	parts := strings.Fields(approvedBy)
	if len(parts) < 2 {
		return ""
	}

	practitioner, err := v.store.PractitionerByName(ctx, parts[0], parts[len(parts)-1])
	if err != nil || practitioner == nil {
		return ""
	}
	return practitioner.ID
}
