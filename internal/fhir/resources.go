package fhir

import (
	"strings"

	"orgfhir/internal"
)

const (
	TypeOrganization   = "Organization"
	TypePlanDefinition = "PlanDefinition"

	NarrativeGenerated = "generated"
)

// Resource is a FHIR resource that can be placed into a bundle.
type Resource interface {
	ResourceType() string
	ResourceID() string
	withoutID() Resource
}

type Narrative struct {
	Status string `json:"status"`
	Div    string `json:"div"`
}

type Reference struct {
	Reference string `json:"reference,omitempty"`
	Display   string `json:"display,omitempty"`
}

type Organization struct {
	Type   string     `json:"resourceType"`
	ID     string     `json:"id,omitempty"`
	Text   *Narrative `json:"text,omitempty"`
	Active *bool      `json:"active,omitempty"`
	Name   string     `json:"name,omitempty"`
	PartOf *Reference `json:"partOf,omitempty"`
}

func (o *Organization) ResourceType() string { return TypeOrganization }
func (o *Organization) ResourceID() string   { return o.ID }

func (o *Organization) withoutID() Resource {
	cp := *o
	cp.ID = ""
	if o.PartOf != nil {
		ref := *o.PartOf
		cp.PartOf = &ref
	}
	return &cp
}

// PartOfID returns the local id of the parent organization, if the partOf
// reference points at one.
func (o *Organization) PartOfID() (string, bool) {
	if o.PartOf == nil {
		return "", false
	}
	id, ok := strings.CutPrefix(o.PartOf.Reference, TypeOrganization+"/")
	return id, ok && id != ""
}

type PlanDefinition struct {
	Type        string `json:"resourceType"`
	ID          string `json:"id,omitempty"`
	Name        string `json:"name,omitempty"`
	Title       string `json:"title,omitempty"`
	Status      string `json:"status"`
	Publisher   string `json:"publisher,omitempty"`
	Description string `json:"description,omitempty"`
}

func (p *PlanDefinition) ResourceType() string { return TypePlanDefinition }
func (p *PlanDefinition) ResourceID() string   { return p.ID }

func (p *PlanDefinition) withoutID() Resource {
	cp := *p
	cp.ID = ""
	return &cp
}

// FromEntities maps derived entities onto FHIR resources, keeping order.
func FromEntities(entities []internal.Entity) []Resource {
	out := make([]Resource, 0, len(entities))
	for _, e := range entities {
		switch e.Kind {
		case internal.KindOrganization:
			out = append(out, NewOrganization(e.Organization))
		case internal.KindProcess:
			out = append(out, NewPlanDefinition(e.Process))
		}
	}
	return out
}

func NewOrganization(e *internal.OrganizationEntity) *Organization {
	active := true
	org := &Organization{
		Type:   TypeOrganization,
		ID:     e.ID,
		Name:   e.DisplayName,
		Active: &active,
		Text:   &Narrative{Status: NarrativeGenerated, Div: e.NarrativeHTML},
	}
	if e.ParentID != nil {
		ref := &Reference{Reference: TypeOrganization + "/" + *e.ParentID}
		if e.ParentName != nil {
			ref.Display = *e.ParentName
		}
		org.PartOf = ref
	}
	return org
}

func NewPlanDefinition(e *internal.ProcessEntity) *PlanDefinition {
	return &PlanDefinition{
		Type:        TypePlanDefinition,
		ID:          e.ID,
		Name:        e.Name,
		Title:       e.Title,
		Status:      e.Status,
		Publisher:   e.Publisher,
		Description: e.Description,
	}
}
