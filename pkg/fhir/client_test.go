package fhir

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/carelink-health/wellness-import/pkg/common/auth"
)

func bundleOf(t *testing.T, resources ...any) []byte {
	t.Helper()
	bundle := Bundle{ResourceType: "Bundle", Total: len(resources)}
	for _, resource := range resources {
		raw, err := json.Marshal(resource)
		if err != nil {
			t.Fatalf("failed to marshal resource: %v", err)
		}
		bundle.Entry = append(bundle.Entry, BundleEntry{Resource: raw})
	}
	out, err := json.Marshal(bundle)
	if err != nil {
		t.Fatalf("failed to marshal bundle: %v", err)
	}
	return out
}

func TestSearchSendsAuthAndProjectHeaders(t *testing.T) {
	var gotAuth, gotProject string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotProject = r.Header.Get("x-project-id")
		w.Header().Set("Content-Type", "application/json")
		w.Write(bundleOf(t))
	}))
	defer server.Close()

	client := NewClient(server.URL, "proj", server.Client(), auth.StaticTokenProvider("tok-1"))
	if _, err := client.PractitionerByName(context.Background(), "Jane", "Smith"); err != nil {
		t.Fatalf("search failed: %v", err)
	}

	if gotAuth != "Bearer tok-1" {
		t.Fatalf("unexpected authorization header %q", gotAuth)
	}
	if gotProject != "proj" {
		t.Fatalf("unexpected project header %q", gotProject)
	}
}

func TestAppointmentByIdentifierReturnsFirstMatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Appointment" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("identifier") != "ord-1" {
			t.Fatalf("unexpected query %v", r.URL.Query())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(bundleOf(t,
			Appointment{ResourceType: "Appointment", ID: "appointment-1"},
			Appointment{ResourceType: "Appointment", ID: "appointment-2"},
		))
	}))
	defer server.Close()

	client := NewClient(server.URL, "proj", server.Client(), auth.StaticTokenProvider("tok"))
	appointment, err := client.AppointmentByIdentifier(context.Background(), "ord-1")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if appointment == nil || appointment.ID != "appointment-1" {
		t.Fatalf("expected first match, got %+v", appointment)
	}
}

func TestAppointmentByIdentifierReturnsNilOnEmptyBundle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(bundleOf(t))
	}))
	defer server.Close()

	client := NewClient(server.URL, "proj", server.Client(), auth.StaticTokenProvider("tok"))
	appointment, err := client.AppointmentByIdentifier(context.Background(), "ord-404")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if appointment != nil {
		t.Fatalf("expected nil for empty bundle, got %+v", appointment)
	}
}

func TestEncounterWithPatientSplitsIncludedResources(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("_include") != "Encounter:subject" {
			t.Fatalf("missing _include param: %v", r.URL.Query())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(bundleOf(t,
			Encounter{ResourceType: "Encounter", ID: "encounter-1"},
			Patient{ResourceType: "Patient", ID: "patient-1"},
		))
	}))
	defer server.Close()

	client := NewClient(server.URL, "proj", server.Client(), auth.StaticTokenProvider("tok"))
	encounter, patient, err := client.EncounterWithPatient(context.Background(), "appointment-1")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if encounter == nil || encounter.ID != "encounter-1" {
		t.Fatalf("unexpected encounter %+v", encounter)
	}
	if patient == nil || patient.ID != "patient-1" {
		t.Fatalf("unexpected patient %+v", patient)
	}
}

func TestCreatePostsAndDecodesResource(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/Patient" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var p Patient
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		p.ID = "patient-1"
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(p)
	}))
	defer server.Close()

	client := NewClient(server.URL, "proj", server.Client(), auth.StaticTokenProvider("tok"))
	created, err := client.CreatePatient(context.Background(), Patient{ResourceType: "Patient", BirthDate: "1990-04-12"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if created.ID != "patient-1" || created.BirthDate != "1990-04-12" {
		t.Fatalf("unexpected created resource %+v", created)
	}
}

func TestUpdatePutsToResourcePath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/Encounter/encounter-1" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Encounter{ResourceType: "Encounter", ID: "encounter-1"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "proj", server.Client(), auth.StaticTokenProvider("tok"))
	updated, err := client.UpdateEncounter(context.Background(), Encounter{ResourceType: "Encounter", ID: "encounter-1"})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.ID != "encounter-1" {
		t.Fatalf("unexpected updated resource %+v", updated)
	}
}

func TestUpdateRejectsMissingID(t *testing.T) {
	client := NewClient("http://record-store.invalid", "proj", http.DefaultClient, auth.StaticTokenProvider("tok"))

	if _, err := client.UpdatePatient(context.Background(), Patient{ResourceType: "Patient"}); err == nil {
		t.Fatal("expected an error for a missing id")
	}
}

func TestSearchReportsServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, "proj", server.Client(), auth.StaticTokenProvider("tok"))
	if _, err := client.PractitionerByName(context.Background(), "Jane", "Smith"); err == nil {
		t.Fatal("expected an error for a 500 response")
	}
}

func TestUnbundleFiltersByResourceType(t *testing.T) {
	raw := bundleOf(t,
		Encounter{ResourceType: "Encounter", ID: "encounter-1"},
		Patient{ResourceType: "Patient", ID: "patient-1"},
		Patient{ResourceType: "Patient", ID: "patient-2"},
	)
	var bundle Bundle
	if err := json.Unmarshal(raw, &bundle); err != nil {
		t.Fatalf("failed to unmarshal bundle: %v", err)
	}

	patients := unbundle[Patient](&bundle, "Patient")
	if len(patients) != 2 || patients[0].ID != "patient-1" {
		t.Fatalf("unexpected patients %+v", patients)
	}
	if got := unbundle[Encounter](&bundle, "Encounter"); len(got) != 1 {
		t.Fatalf("unexpected encounters %+v", got)
	}
}
