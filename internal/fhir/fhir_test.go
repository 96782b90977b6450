package fhir

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/require"

	"orgfhir/internal"
	"orgfhir/internal/config"
	"orgfhir/internal/util"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("00000000-0000-0000-0000-%012d", n)
	}
}

func sampleEntities() []internal.Entity {
	return []internal.Entity{
		{Kind: internal.KindOrganization, Organization: &internal.OrganizationEntity{
			ID: "a", DisplayName: "A", NarrativeHTML: `<div xmlns="http://www.w3.org/1999/xhtml"><h3>A</h3><ul></ul></div>`,
		}},
		{Kind: internal.KindProcess, Process: &internal.ProcessEntity{
			ID: "a-p", Name: "p", Title: "P", Publisher: "A", Description: "x; y", Status: internal.ProcessStatusActive,
		}},
		{Kind: internal.KindOrganization, Organization: &internal.OrganizationEntity{
			ID: "b", DisplayName: "B", NarrativeHTML: "<div/>", ParentID: util.StringPtr("a"), ParentName: util.StringPtr("A"),
		}},
	}
}

func TestFromEntities(t *testing.T) {
	resources := FromEntities(sampleEntities())
	require.Len(t, resources, 3)

	a := resources[0].(*Organization)
	require.Equal(t, "a", a.ID)
	require.Equal(t, "A", a.Name)
	require.True(t, *a.Active)
	require.Equal(t, NarrativeGenerated, a.Text.Status)
	require.Nil(t, a.PartOf)

	p := resources[1].(*PlanDefinition)
	require.Equal(t, &PlanDefinition{
		Type: TypePlanDefinition, ID: "a-p", Name: "p", Title: "P", Status: "active", Publisher: "A", Description: "x; y",
	}, p)

	b := resources[2].(*Organization)
	require.Equal(t, &Reference{Reference: "Organization/a", Display: "A"}, b.PartOf)
}

func TestNewTransactionBundle(t *testing.T) {
	resources := FromEntities(sampleEntities())

	bundle := NewTransactionBundle(resources, sequentialIDs())

	require.Equal(t, BundleTransaction, bundle.Type)
	require.Len(t, bundle.Entry, 3)
	for i, e := range bundle.Entry {
		require.Equal(t, fmt.Sprintf("urn:uuid:00000000-0000-0000-0000-%012d", i+1), e.FullURL)
		require.Empty(t, e.Resource.ResourceID())
		require.Equal(t, &BundleRequest{Method: "POST", URL: e.Resource.ResourceType()}, e.Request)
	}
	b := bundle.Entry[2].Resource.(*Organization)
	require.Equal(t, bundle.Entry[0].FullURL, b.PartOf.Reference)
	require.Equal(t, "A", b.PartOf.Display)

	// the input resources keep their local ids and references
	require.Equal(t, "b", resources[2].ResourceID())
	require.Equal(t, "Organization/a", resources[2].(*Organization).PartOf.Reference)
}

func TestTransactionBundleDuplicateIDs(t *testing.T) {
	parent := func(id string) *Reference { return &Reference{Reference: "Organization/" + id} }
	resources := []Resource{
		&Organization{Type: TypeOrganization, ID: "x"},
		&Organization{Type: TypeOrganization, ID: "y", PartOf: parent("x")},
		&Organization{Type: TypeOrganization, ID: "x"},
		&Organization{Type: TypeOrganization, ID: "z", PartOf: parent("x")},
		&Organization{Type: TypeOrganization, ID: "w", PartOf: parent("later")},
		&Organization{Type: TypeOrganization, ID: "later"},
		&Organization{Type: TypeOrganization, ID: "v", PartOf: parent("unknown")},
	}

	bundle := NewTransactionBundle(resources, sequentialIDs())

	ref := func(i int) string { return bundle.Entry[i].Resource.(*Organization).PartOf.Reference }
	require.Equal(t, bundle.Entry[0].FullURL, ref(1))
	require.Equal(t, bundle.Entry[2].FullURL, ref(3))
	require.Equal(t, bundle.Entry[5].FullURL, ref(4))
	require.Equal(t, "Organization/unknown", ref(6))

	seen := map[string]bool{}
	for _, e := range bundle.Entry {
		require.False(t, seen[e.FullURL])
		seen[e.FullURL] = true
	}
}

func TestCollectionBundleJSON(t *testing.T) {
	bundle := NewCollectionBundle(FromEntities(sampleEntities()))

	var buf bytes.Buffer
	require.NoError(t, bundle.WriteJSON(&buf))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Equal(t, "Bundle", decoded["resourceType"])
	require.Equal(t, "collection", decoded["type"])

	entries := decoded["entry"].([]any)
	require.Len(t, entries, 3)
	first := entries[0].(map[string]any)
	require.NotContains(t, first, "request")
	require.NotContains(t, first, "fullUrl")
	org := first["resource"].(map[string]any)
	require.Equal(t, "Organization", org["resourceType"])
	require.Equal(t, "a", org["id"])
	require.Equal(t, true, org["active"])
	require.Contains(t, buf.String(), `<h3>A</h3>`)

	plan := entries[1].(map[string]any)["resource"].(map[string]any)
	require.Equal(t, "PlanDefinition", plan["resourceType"])
	require.Equal(t, "active", plan["status"])
}

func newTestClient(t *testing.T, rt roundTripFunc) *Client {
	t.Helper()
	client, err := NewClient(context.Background(), config.Config{FHIRServer: "fhir.local:8080/fhir", FHIRTimeoutMs: 1000})
	require.NoError(t, err)
	client.httpClient = &http.Client{Transport: rt}
	client.newBackOff = func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) }
	return client
}

func TestSubmitTransaction(t *testing.T) {
	attempt := 0
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		attempt++
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "http://fhir.local:8080/fhir", r.URL.String())
		require.Equal(t, ContentType, r.Header.Get("Content-Type"))

		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.Contains(t, string(raw), `"type":"transaction"`)
		require.Contains(t, string(raw), `"fullUrl":"urn:uuid:`)

		if attempt == 1 {
			return &http.Response{StatusCode: http.StatusServiceUnavailable, Body: io.NopCloser(strings.NewReader("busy")), Header: make(http.Header)}, nil
		}
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(`{"resourceType":"Bundle","type":"transaction-response"}`)), Header: make(http.Header)}, nil
	})

	body, err := client.SubmitTransaction(context.Background(), NewTransactionBundle(FromEntities(sampleEntities()), nil))
	require.NoError(t, err)
	require.Contains(t, string(body), "transaction-response")
	require.Equal(t, 2, attempt)
}

func TestSubmitTransactionRejected(t *testing.T) {
	attempt := 0
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		attempt++
		return &http.Response{StatusCode: http.StatusUnprocessableEntity, Body: io.NopCloser(strings.NewReader(`{"resourceType":"OperationOutcome"}`)), Header: make(http.Header)}, nil
	})

	_, err := client.SubmitTransaction(context.Background(), NewTransactionBundle(nil, nil))
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusUnprocessableEntity, statusErr.StatusCode)
	require.Equal(t, 1, attempt)
}

func TestSubmitRequiresTransaction(t *testing.T) {
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		t.Fatal("unexpected request")
		return nil, nil
	})
	_, err := client.SubmitTransaction(context.Background(), NewCollectionBundle(nil))
	require.Error(t, err)
}

func TestNewClient(t *testing.T) {
	_, err := NewClient(context.Background(), config.Config{})
	require.ErrorIs(t, err, ErrNoServer)

	c, err := NewClient(context.Background(), config.Config{FHIRServer: "https://fhir.example.cz/r4/"})
	require.NoError(t, err)
	require.Equal(t, "https://fhir.example.cz/r4", c.BaseURL())
}
