package wellness

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/carelink-health/wellness-import/pkg/fhir"
	"github.com/carelink-health/wellness-import/pkg/identity"
)

// fakeStore is an in-memory RecordStore. Creates register the entity so a
// later run resolves it, which lets tests replay the same submission.
type fakeStore struct {
	mu  sync.Mutex
	seq int

	practitioner  *fhir.Practitioner
	patient       *fhir.Patient
	relatedPerson *fhir.RelatedPerson
	person        *fhir.Person
	appointment   *fhir.Appointment
	encounter     *fhir.Encounter
	documents     []fhir.DocumentReference

	ops          []string
	lastDocument *fhir.DocumentReference
}

func (s *fakeStore) op(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, name)
}

func (s *fakeStore) newID(kind string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return fmt.Sprintf("%s-%d", kind, s.seq)
}

func (s *fakeStore) opIndex(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, op := range s.ops {
		if op == name {
			return i
		}
	}
	return -1
}

func (s *fakeStore) countOps(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, op := range s.ops {
		if strings.HasPrefix(op, prefix) {
			n++
		}
	}
	return n
}

func (s *fakeStore) PractitionerByName(ctx context.Context, given, family string) (*fhir.Practitioner, error) {
	s.op("PractitionerByName")
	if s.practitioner == nil {
		return nil, nil
	}
	for _, name := range s.practitioner.Name {
		if name.Family == family && len(name.Given) > 0 && name.Given[0] == given {
			return s.practitioner, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) PatientByDemographics(ctx context.Context, birthDate, postalCode, given, family string) (*fhir.Patient, error) {
	s.op("PatientByDemographics")
	return s.patient, nil
}

func (s *fakeStore) RelatedPersonByPatient(ctx context.Context, patientID string) (*fhir.RelatedPerson, error) {
	s.op("RelatedPersonByPatient")
	return s.relatedPerson, nil
}

func (s *fakeStore) PersonByRelatedPerson(ctx context.Context, relatedPersonID string) (*fhir.Person, error) {
	s.op("PersonByRelatedPerson")
	return s.person, nil
}

func (s *fakeStore) AppointmentByIdentifier(ctx context.Context, identifier string) (*fhir.Appointment, error) {
	s.op("AppointmentByIdentifier")
	if s.appointment == nil {
		return nil, nil
	}
	for _, id := range s.appointment.Identifier {
		if id.Value == identifier {
			return s.appointment, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) EncounterWithPatient(ctx context.Context, appointmentID string) (*fhir.Encounter, *fhir.Patient, error) {
	s.op("EncounterWithPatient")
	return s.encounter, s.patient, nil
}

func (s *fakeStore) PersonWithRelatedPerson(ctx context.Context, patientID string) (*fhir.Person, *fhir.RelatedPerson, error) {
	s.op("PersonWithRelatedPerson")
	return s.person, s.relatedPerson, nil
}

func (s *fakeStore) DocumentsByEncounter(ctx context.Context, encounterID string) ([]fhir.DocumentReference, error) {
	s.op("DocumentsByEncounter")
	return s.documents, nil
}

func (s *fakeStore) CreatePatient(ctx context.Context, p fhir.Patient) (*fhir.Patient, error) {
	s.op("CreatePatient")
	p.ID = s.newID("patient")
	s.patient = &p
	return &p, nil
}

func (s *fakeStore) UpdatePatient(ctx context.Context, p fhir.Patient) (*fhir.Patient, error) {
	s.op("UpdatePatient")
	if s.patient == nil {
		s.patient = &p
	}
	return &p, nil
}

func (s *fakeStore) CreateRelatedPerson(ctx context.Context, rp fhir.RelatedPerson) (*fhir.RelatedPerson, error) {
	s.op("CreateRelatedPerson")
	rp.ID = s.newID("relatedperson")
	s.relatedPerson = &rp
	return &rp, nil
}

func (s *fakeStore) UpdateRelatedPerson(ctx context.Context, rp fhir.RelatedPerson) (*fhir.RelatedPerson, error) {
	s.op("UpdateRelatedPerson")
	return &rp, nil
}

func (s *fakeStore) CreatePerson(ctx context.Context, p fhir.Person) (*fhir.Person, error) {
	s.op("CreatePerson")
	p.ID = s.newID("person")
	s.person = &p
	return &p, nil
}

func (s *fakeStore) UpdatePerson(ctx context.Context, p fhir.Person) (*fhir.Person, error) {
	s.op("UpdatePerson")
	return &p, nil
}

func (s *fakeStore) CreateAppointment(ctx context.Context, a fhir.Appointment) (*fhir.Appointment, error) {
	s.op("CreateAppointment")
	a.ID = s.newID("appointment")
	s.appointment = &a
	return &a, nil
}

func (s *fakeStore) UpdateAppointment(ctx context.Context, a fhir.Appointment) (*fhir.Appointment, error) {
	s.op("UpdateAppointment")
	return &a, nil
}

func (s *fakeStore) CreateEncounter(ctx context.Context, e fhir.Encounter) (*fhir.Encounter, error) {
	s.op("CreateEncounter")
	e.ID = s.newID("encounter")
	s.encounter = &e
	return &e, nil
}

func (s *fakeStore) UpdateEncounter(ctx context.Context, e fhir.Encounter) (*fhir.Encounter, error) {
	s.op("UpdateEncounter")
	return &e, nil
}

func (s *fakeStore) CreateDocumentReference(ctx context.Context, d fhir.DocumentReference) (*fhir.DocumentReference, error) {
	s.op("CreateDocumentReference")
	d.ID = s.newID("document")
	s.documents = []fhir.DocumentReference{d}
	s.lastDocument = &d
	return &d, nil
}

func (s *fakeStore) UpdateDocumentReference(ctx context.Context, d fhir.DocumentReference) (*fhir.DocumentReference, error) {
	s.op("UpdateDocumentReference")
	s.documents = []fhir.DocumentReference{d}
	s.lastDocument = &d
	return &d, nil
}

type fakeDirectory struct {
	user        *identity.User
	profileUser *identity.User
	role        *identity.Role
	invitation  *identity.Invitation

	invites []identity.InviteParams
}

func (d *fakeDirectory) FindByContact(ctx context.Context, email, phone string) (*identity.User, error) {
	return d.user, nil
}

func (d *fakeDirectory) FindByProfile(ctx context.Context, profile string) (*identity.User, error) {
	return d.profileUser, nil
}

func (d *fakeDirectory) RoleByName(ctx context.Context, name string) (*identity.Role, error) {
	if d.role != nil {
		return d.role, nil
	}
	return &identity.Role{ID: "role-patient", Name: name}, nil
}

func (d *fakeDirectory) Invite(ctx context.Context, params identity.InviteParams) (*identity.Invitation, error) {
	d.invites = append(d.invites, params)
	if d.invitation != nil {
		d.user = &identity.User{ID: d.invitation.ID, Profile: d.invitation.Profile}
		return d.invitation, nil
	}
	inv := &identity.Invitation{
		ID:            "user-invited",
		Profile:       "Patient/patient-invited",
		InvitationURL: "https://portal.example.com/invite/abc123",
	}
	d.user = &identity.User{ID: inv.ID, Profile: inv.Profile}
	return inv, nil
}

// fakeObjects is an in-memory ObjectStore keyed by bucket/key.
type fakeObjects struct {
	mu          sync.Mutex
	data        map[string][]byte
	uploads     []string
	failUploads bool
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{data: map[string][]byte{}}
}

func (o *fakeObjects) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	content, ok := o.data[bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("object %s/%s not found", bucket, key)
	}
	return content, nil
}

func (o *fakeObjects) Upload(ctx context.Context, bucket, key, contentType string, body []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failUploads {
		return fmt.Errorf("upload to %s/%s refused", bucket, key)
	}
	o.data[bucket+"/"+key] = body
	o.uploads = append(o.uploads, bucket+"/"+key)
	return nil
}

func (o *fakeObjects) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var keys []string
	for path := range o.data {
		b, key, _ := strings.Cut(path, "/")
		if b == bucket && strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (o *fakeObjects) uploadsTo(bucket string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, path := range o.uploads {
		if strings.HasPrefix(path, bucket+"/") {
			n++
		}
	}
	return n
}
