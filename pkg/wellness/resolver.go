package wellness

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/carelink-health/wellness-import/pkg/fhir"
	"github.com/carelink-health/wellness-import/pkg/identity"
)

// Resolution holds whatever existing entities the deterministic lookups
// found. Any pointer may be nil.
type Resolution struct {
	User          *identity.User
	Patient       *fhir.Patient
	RelatedPerson *fhir.RelatedPerson
	Person        *fhir.Person
	Appointment   *fhir.Appointment
}

// VisitGraph is the entity graph hanging off an existing appointment.
type VisitGraph struct {
	Patient       *fhir.Patient
	RelatedPerson *fhir.RelatedPerson
	Person        *fhir.Person
	Encounter     *fhir.Encounter
	Document      *fhir.DocumentReference
}

type Resolver struct {
	store     RecordStore
	directory Directory
}

func NewResolver(store RecordStore, directory Directory) *Resolver {
	return &Resolver{store: store, directory: directory}
}

// Resolve runs the independent lookups concurrently. The three branches
// (user, patient linkage chain, appointment) share no state; within the
// linkage chain each lookup needs the previous one's id.
func (r *Resolver) Resolve(ctx context.Context, rec *WellnessRecord) (*Resolution, error) {
	res := &Resolution{}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		user, err := r.directory.FindByContact(gctx, rec.Email, rec.Phone)
		if err != nil {
			return err
		}
		res.User = user
		return nil
	})

	g.Go(func() error {
		patient, err := r.store.PatientByDemographics(gctx, rec.DOB, string(rec.Zip), rec.FirstName, rec.LastName)
		if err != nil {
			return err
		}
		res.Patient = patient
		if patient == nil {
			return nil
		}

		relatedPerson, err := r.store.RelatedPersonByPatient(gctx, patient.ID)
		if err != nil {
			return err
		}
		res.RelatedPerson = relatedPerson
		if relatedPerson == nil {
			return nil
		}

		person, err := r.store.PersonByRelatedPerson(gctx, relatedPerson.ID)
		if err != nil {
			return err
		}
		res.Person = person
		return nil
	})

	g.Go(func() error {
		if rec.OrderID == "" {
			return nil
		}
		appointment, err := r.store.AppointmentByIdentifier(gctx, rec.OrderID)
		if err != nil {
			return err
		}
		res.Appointment = appointment
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}

// VisitGraph re-resolves the full graph for an existing appointment,
// including the most recently updated result document.
func (r *Resolver) VisitGraph(ctx context.Context, appointmentID string) (*VisitGraph, error) {
	graph := &VisitGraph{}

	encounter, patient, err := r.store.EncounterWithPatient(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	graph.Encounter = encounter
	graph.Patient = patient

	if patient != nil {
		person, relatedPerson, err := r.store.PersonWithRelatedPerson(ctx, patient.ID)
		if err != nil {
			return nil, err
		}
		graph.Person = person
		graph.RelatedPerson = relatedPerson
	}

	if encounter != nil {
		documents, err := r.store.DocumentsByEncounter(ctx, encounter.ID)
		if err != nil {
			return nil, err
		}
		graph.Document = latestDocument(documents)
	}

	return graph, nil
}

// latestDocument picks the most recently updated document. A document with
// no last-updated timestamp sorts last.
func latestDocument(documents []fhir.DocumentReference) *fhir.DocumentReference {
	if len(documents) == 0 {
		return nil
	}

	sorted := make([]fhir.DocumentReference, len(documents))
	copy(sorted, documents)

	sort.SliceStable(sorted, func(i, j int) bool {
		return lastUpdated(&sorted[i]).After(lastUpdated(&sorted[j]))
	})
	return &sorted[0]
}

func lastUpdated(doc *fhir.DocumentReference) time.Time {
	if doc.Meta == nil || doc.Meta.LastUpdated == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, doc.Meta.LastUpdated)
	if err != nil {
		return time.Time{}
	}
	return t
}
