// Package workflow implements the branding-to-post pipeline: its steps, the
// static graph connecting them, and the engine that walks that graph.
package workflow

import (
	"errors"
	"slices"
	"strings"
)

// ErrMissingClientID is returned when a state has no owning client.
var ErrMissingClientID = errors.New("workflow: client_id is required")

// Post publication outcomes.
const (
	PostStatusSuccess = "success"
	PostStatusError   = "error"
)

// Names of the property details required before a post can be written, in
// the order they are reported.
const (
	FieldLocation = "location"
	FieldPrice    = "price"
	FieldBedrooms = "bedrooms"
	FieldFeatures = "features"
)

// PostResult is the structured outcome of a publish attempt.
type PostResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	PostID  string `json:"post_id,omitempty"`
	Details string `json:"details,omitempty"`
}

// OK reports whether the post was published.
func (r *PostResult) OK() bool {
	return r != nil && r.Status == PostStatusSuccess
}

// State is the accumulated record of one client's pipeline run.
// Nil pointers and nil slices mean "not set".
type State struct {
	ClientID         string      `json:"client_id"`
	UserInput        *string     `json:"user_input,omitempty"`
	BrandSuggestions *string     `json:"brand_suggestions,omitempty"`
	VisualPrompts    *string     `json:"visual_prompts,omitempty"`
	ImagePath        *string     `json:"image_path,omitempty"`
	Location         *string     `json:"location,omitempty"`
	Price            *string     `json:"price,omitempty"`
	Bedrooms         *string     `json:"bedrooms,omitempty"`
	Features         []string    `json:"features,omitempty"`
	BasePost         *string     `json:"base_post,omitempty"`
	MissingInfo      []string    `json:"missing_info,omitempty"`
	PostResult       *PostResult `json:"post_result,omitempty"`
}

// NewState returns an empty state owned by clientID.
func NewState(clientID string) State {
	return State{ClientID: clientID}
}

// Validate checks the invariants every state must hold.
func (s State) Validate() error {
	if strings.TrimSpace(s.ClientID) == "" {
		return ErrMissingClientID
	}
	return nil
}

// Clone returns a copy that shares no mutable memory with s.
func (s State) Clone() State {
	out := s
	out.Features = slices.Clone(s.Features)
	out.MissingInfo = slices.Clone(s.MissingInfo)
	if s.PostResult != nil {
		pr := *s.PostResult
		out.PostResult = &pr
	}
	return out
}

// Apply returns a copy of s with every field set in p replaced.
func (s State) Apply(p Patch) State {
	out := s.Clone()
	if p.BrandSuggestions != nil {
		out.BrandSuggestions = p.BrandSuggestions
	}
	if p.VisualPrompts != nil {
		out.VisualPrompts = p.VisualPrompts
	}
	if p.ImagePath != nil {
		out.ImagePath = p.ImagePath
	}
	if p.BasePost != nil {
		out.BasePost = p.BasePost
	}
	if p.MissingInfo != nil {
		out.MissingInfo = append([]string{}, *p.MissingInfo...)
	}
	if p.PostResult != nil {
		pr := *p.PostResult
		out.PostResult = &pr
	}
	return out
}

// Reseed starts a fresh run for userInput. Generated fields are dropped;
// the client id and any property details already supplied are kept.
func (s State) Reseed(userInput string) State {
	return State{
		ClientID:  s.ClientID,
		UserInput: &userInput,
		Location:  s.Location,
		Price:     s.Price,
		Bedrooms:  s.Bedrooms,
		Features:  slices.Clone(s.Features),
	}
}

// Details is a partial set of property details sent by the client.
// Only non-nil fields are merged.
type Details struct {
	Location *string
	Price    *string
	Bedrooms *string
	Features []string
}

// MergeDetails copies the supplied details into s and clears the
// previously computed missing fields.
func (s *State) MergeDetails(d Details) {
	if d.Location != nil {
		s.Location = d.Location
	}
	if d.Price != nil {
		s.Price = d.Price
	}
	if d.Bedrooms != nil {
		s.Bedrooms = d.Bedrooms
	}
	if d.Features != nil {
		s.Features = slices.Clone(d.Features)
	}
	s.MissingInfo = nil
}

// MissingFields lists the required property details that are absent or
// blank, in a fixed order.
func MissingFields(s State) []string {
	missing := []string{}
	if blank(s.Location) {
		missing = append(missing, FieldLocation)
	}
	if blank(s.Price) {
		missing = append(missing, FieldPrice)
	}
	if blank(s.Bedrooms) {
		missing = append(missing, FieldBedrooms)
	}
	if len(s.Features) == 0 {
		missing = append(missing, FieldFeatures)
	}
	return missing
}

func blank(v *string) bool {
	return v == nil || strings.TrimSpace(*v) == ""
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

// Patch is the partial update a step returns. It can set generated fields
// but has no way to unset one.
type Patch struct {
	BrandSuggestions *string     `json:"brand_suggestions,omitempty"`
	VisualPrompts    *string     `json:"visual_prompts,omitempty"`
	ImagePath        *string     `json:"image_path,omitempty"`
	BasePost         *string     `json:"base_post,omitempty"`
	MissingInfo      *[]string   `json:"missing_info,omitempty"`
	PostResult       *PostResult `json:"post_result,omitempty"`
}

// IsEmpty reports whether p changes nothing.
func (p Patch) IsEmpty() bool {
	return p == Patch{}
}
