package wellness

import (
	"context"
	"testing"

	"github.com/carelink-health/wellness-import/pkg/fhir"
	"github.com/carelink-health/wellness-import/pkg/identity"
)

func TestResolveWalksLinkageChain(t *testing.T) {
	store := &fakeStore{
		patient:       &fhir.Patient{ID: "patient-1"},
		relatedPerson: &fhir.RelatedPerson{ID: "relatedperson-1"},
		person:        &fhir.Person{ID: "person-1"},
	}
	directory := &fakeDirectory{user: &identity.User{ID: "user-1"}}
	resolver := NewResolver(store, directory)

	res, err := resolver.Resolve(context.Background(), &WellnessRecord{
		OrderID: "ord-1",
		Email:   "pat@example.com",
	})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	if res.User == nil || res.User.ID != "user-1" {
		t.Fatalf("expected user-1, got %+v", res.User)
	}
	if res.Patient == nil || res.Patient.ID != "patient-1" {
		t.Fatalf("expected patient-1, got %+v", res.Patient)
	}
	if res.RelatedPerson == nil || res.RelatedPerson.ID != "relatedperson-1" {
		t.Fatalf("expected relatedperson-1, got %+v", res.RelatedPerson)
	}
	if res.Person == nil || res.Person.ID != "person-1" {
		t.Fatalf("expected person-1, got %+v", res.Person)
	}
	if res.Appointment != nil {
		t.Fatalf("expected no appointment, got %+v", res.Appointment)
	}
}

func TestResolveStopsChainWithoutPatient(t *testing.T) {
	store := &fakeStore{
		relatedPerson: &fhir.RelatedPerson{ID: "relatedperson-1"},
	}
	resolver := NewResolver(store, &fakeDirectory{})

	res, err := resolver.Resolve(context.Background(), &WellnessRecord{OrderID: "ord-1"})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	if res.Patient != nil || res.RelatedPerson != nil || res.Person != nil {
		t.Fatalf("expected empty chain without a patient match, got %+v", res)
	}
	if store.opIndex("RelatedPersonByPatient") != -1 {
		t.Fatal("related person lookup should not run without a patient")
	}
}

func TestResolveSkipsAppointmentWithoutOrderID(t *testing.T) {
	store := &fakeStore{
		appointment: &fhir.Appointment{ID: "appointment-1", Identifier: []fhir.Identifier{{Value: "ord-1"}}},
	}
	resolver := NewResolver(store, &fakeDirectory{})

	res, err := resolver.Resolve(context.Background(), &WellnessRecord{})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if res.Appointment != nil {
		t.Fatal("appointment lookup should be skipped without an order id")
	}
}

func TestVisitGraphCollectsLatestDocument(t *testing.T) {
	store := &fakeStore{
		patient:       &fhir.Patient{ID: "patient-1"},
		relatedPerson: &fhir.RelatedPerson{ID: "relatedperson-1"},
		person:        &fhir.Person{ID: "person-1"},
		encounter:     &fhir.Encounter{ID: "encounter-1"},
		documents: []fhir.DocumentReference{
			{ID: "doc-old", Meta: &fhir.Meta{LastUpdated: "2026-01-01T10:00:00Z"}},
			{ID: "doc-new", Meta: &fhir.Meta{LastUpdated: "2026-03-01T10:00:00Z"}},
		},
	}
	resolver := NewResolver(store, &fakeDirectory{})

	graph, err := resolver.VisitGraph(context.Background(), "appointment-1")
	if err != nil {
		t.Fatalf("visit graph failed: %v", err)
	}

	if graph.Encounter == nil || graph.Encounter.ID != "encounter-1" {
		t.Fatalf("expected encounter-1, got %+v", graph.Encounter)
	}
	if graph.Document == nil || graph.Document.ID != "doc-new" {
		t.Fatalf("expected doc-new, got %+v", graph.Document)
	}
}

func TestLatestDocumentSortsMissingTimestampLast(t *testing.T) {
	docs := []fhir.DocumentReference{
		{ID: "doc-unstamped"},
		{ID: "doc-stamped", Meta: &fhir.Meta{LastUpdated: "2026-02-01T08:00:00Z"}},
	}

	latest := latestDocument(docs)
	if latest == nil || latest.ID != "doc-stamped" {
		t.Fatalf("expected doc-stamped, got %+v", latest)
	}

	if latestDocument(nil) != nil {
		t.Fatal("no documents should yield nil")
	}
}
