package fhir

import (
	"encoding/json"
	"io"

	"github.com/google/uuid"
)

const (
	BundleTransaction = "transaction"
	BundleCollection  = "collection"

	urnUUIDPrefix = "urn:uuid:"
)

type Bundle struct {
	ResourceType string        `json:"resourceType"`
	Type         string        `json:"type"`
	Entry        []BundleEntry `json:"entry,omitempty"`
}

type BundleEntry struct {
	FullURL  string         `json:"fullUrl,omitempty"`
	Resource Resource       `json:"resource"`
	Request  *BundleRequest `json:"request,omitempty"`
}

type BundleRequest struct {
	Method string `json:"method"`
	URL    string `json:"url"`
}

func NewUUID() string { return uuid.New().String() }

// NewTransactionBundle builds a create-only transaction. Every entry gets a
// fresh urn:uuid surrogate from newID, local ids are stripped so the server
// assigns its own, and partOf references are rewritten to the surrogate of the
// referenced organization. When a local id occurs more than once, a reference
// resolves to the latest earlier entry with that id, else to the first one.
func NewTransactionBundle(resources []Resource, newID func() string) Bundle {
	if newID == nil {
		newID = NewUUID
	}

	surrogates := make([]string, len(resources))
	first := map[string]string{}
	for i, r := range resources {
		surrogates[i] = urnUUIDPrefix + newID()
		key := r.ResourceType() + "/" + r.ResourceID()
		if _, ok := first[key]; !ok && r.ResourceID() != "" {
			first[key] = surrogates[i]
		}
	}

	bundle := Bundle{ResourceType: "Bundle", Type: BundleTransaction, Entry: make([]BundleEntry, 0, len(resources))}
	latest := map[string]string{}
	for i, r := range resources {
		if r.ResourceID() != "" {
			latest[r.ResourceType()+"/"+r.ResourceID()] = surrogates[i]
		}

		res := r.withoutID()
		if org, ok := res.(*Organization); ok {
			if parentID, ok := org.PartOfID(); ok {
				key := TypeOrganization + "/" + parentID
				if target, ok := latest[key]; ok {
					org.PartOf.Reference = target
				} else if target, ok := first[key]; ok {
					org.PartOf.Reference = target
				}
			}
		}

		bundle.Entry = append(bundle.Entry, BundleEntry{
			FullURL:  surrogates[i],
			Resource: res,
			Request:  &BundleRequest{Method: "POST", URL: r.ResourceType()},
		})
	}
	return bundle
}

// NewCollectionBundle wraps resources unchanged, local ids included.
func NewCollectionBundle(resources []Resource) Bundle {
	bundle := Bundle{ResourceType: "Bundle", Type: BundleCollection, Entry: make([]BundleEntry, 0, len(resources))}
	for _, r := range resources {
		bundle.Entry = append(bundle.Entry, BundleEntry{Resource: r})
	}
	return bundle
}

func (b Bundle) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(b)
}
