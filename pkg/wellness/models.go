package wellness

import (
	"context"
	"errors"

	"github.com/carelink-health/wellness-import/pkg/fhir"
	"github.com/carelink-health/wellness-import/pkg/identity"
)

// RecordStore is the capability this core needs from the clinical record
// store. pkg/fhir.Client implements it.
type RecordStore interface {
	PractitionerByName(ctx context.Context, given, family string) (*fhir.Practitioner, error)
	PatientByDemographics(ctx context.Context, birthDate, postalCode, given, family string) (*fhir.Patient, error)
	RelatedPersonByPatient(ctx context.Context, patientID string) (*fhir.RelatedPerson, error)
	PersonByRelatedPerson(ctx context.Context, relatedPersonID string) (*fhir.Person, error)
	AppointmentByIdentifier(ctx context.Context, identifier string) (*fhir.Appointment, error)
	EncounterWithPatient(ctx context.Context, appointmentID string) (*fhir.Encounter, *fhir.Patient, error)
	PersonWithRelatedPerson(ctx context.Context, patientID string) (*fhir.Person, *fhir.RelatedPerson, error)
	DocumentsByEncounter(ctx context.Context, encounterID string) ([]fhir.DocumentReference, error)

	CreatePatient(ctx context.Context, p fhir.Patient) (*fhir.Patient, error)
	UpdatePatient(ctx context.Context, p fhir.Patient) (*fhir.Patient, error)
	CreateRelatedPerson(ctx context.Context, rp fhir.RelatedPerson) (*fhir.RelatedPerson, error)
	UpdateRelatedPerson(ctx context.Context, rp fhir.RelatedPerson) (*fhir.RelatedPerson, error)
	CreatePerson(ctx context.Context, p fhir.Person) (*fhir.Person, error)
	UpdatePerson(ctx context.Context, p fhir.Person) (*fhir.Person, error)
	CreateAppointment(ctx context.Context, a fhir.Appointment) (*fhir.Appointment, error)
	UpdateAppointment(ctx context.Context, a fhir.Appointment) (*fhir.Appointment, error)
	CreateEncounter(ctx context.Context, e fhir.Encounter) (*fhir.Encounter, error)
	UpdateEncounter(ctx context.Context, e fhir.Encounter) (*fhir.Encounter, error)
	CreateDocumentReference(ctx context.Context, d fhir.DocumentReference) (*fhir.DocumentReference, error)
	UpdateDocumentReference(ctx context.Context, d fhir.DocumentReference) (*fhir.DocumentReference, error)
}

// Directory is the capability this core needs from the identity and
// invitation service. pkg/identity.Client implements it.
type Directory interface {
	FindByContact(ctx context.Context, email, phone string) (*identity.User, error)
	FindByProfile(ctx context.Context, profile string) (*identity.User, error)
	RoleByName(ctx context.Context, name string) (*identity.Role, error)
	Invite(ctx context.Context, params identity.InviteParams) (*identity.Invitation, error)
}

// ObjectStore is the capability this core needs from the blob store.
// pkg/blobstore.Client implements it.
type ObjectStore interface {
	Download(ctx context.Context, bucket, key string) ([]byte, error)
	Upload(ctx context.Context, bucket, key, contentType string, body []byte) error
	List(ctx context.Context, bucket, prefix string) ([]string, error)
}

// Result reports every entity the run resolved or produced. A partial result
// is a normal outcome: missing prerequisites skip creations, they do not fail
// the run.
type Result struct {
	OrderID             string `json:"order_id,omitempty"`
	Practitioner        string `json:"practitioner,omitempty"`
	Location            string `json:"location,omitempty"`
	ExistingUser        string `json:"existingUser,omitempty"`
	User                string `json:"user,omitempty"`
	Patient             string `json:"patient,omitempty"`
	RelatedPerson       string `json:"relatedPerson,omitempty"`
	Person              string `json:"person,omitempty"`
	Appointment         string `json:"appointment,omitempty"`
	Encounter           string `json:"encounter,omitempty"`
	DocumentReference   string `json:"documentReference,omitempty"`
	InviteURL           string `json:"inviteURL,omitempty"`
	PatientRole         string `json:"patientRole,omitempty"`
	InviteCodeGenerated bool   `json:"inviteCodeGenerated,omitempty"`
	Action              string `json:"action,omitempty"`
}

// ValidationError carries the joined message of every failed check. The HTTP
// layer maps it to a 400.
type ValidationError struct {
	message string
}

func (e ValidationError) Error() string {
	return e.message
}

func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}
