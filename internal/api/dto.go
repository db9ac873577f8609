package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/raido/internal/domain"
)

// CreateInitiativeRequest is the request body for creating an initiative.
// An id is optional; the server assigns one when it is empty. Posting an id
// that already exists updates that record.
type CreateInitiativeRequest struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	Status          string  `json:"status"`
	Priority        string  `json:"priority"`
	ETA             string  `json:"eta"`
	EstimatedEffort float64 `json:"estimated_effort"`
	ActualEffort    float64 `json:"actual_effort"`
	OwnerID         string  `json:"owner_id"`
}

// Validate implements request validation.
func (r CreateInitiativeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.Required),
		validation.Field(&r.Status, validation.By(optionalStatus)),
		validation.Field(&r.ETA, validation.Date(domain.DateLayout)),
	)
}

func optionalStatus(v any) error {
	s, _ := v.(string)
	if s == "" || domain.Status(s).Valid() {
		return nil
	}
	return validation.NewError("validation_status", "must be a known status")
}

// UpdateFieldRequest is the body of a single-field edit.
type UpdateFieldRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
	Actor string `json:"actor"`
}

// Validate implements request validation.
func (r UpdateFieldRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Field, validation.Required, validation.By(knownField)),
		validation.Field(&r.Actor, validation.Required),
	)
}

func knownField(v any) error {
	f, _ := v.(string)
	if domain.Field(f).Valid() {
		return nil
	}
	return validation.NewError("validation_field", "must be an editable field")
}

// AddCommentRequest is the body for posting a comment.
type AddCommentRequest struct {
	AuthorID string `json:"author_id"`
	Text     string `json:"text"`
}

// Validate implements request validation.
func (r AddCommentRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.AuthorID, validation.Required),
		validation.Field(&r.Text, validation.Required),
	)
}

// IngestCommentRequest carries a remotely originated comment.
type IngestCommentRequest struct {
	InitiativeID string         `json:"initiative_id"`
	Comment      domain.Comment `json:"comment"`
}

// Validate implements request validation.
func (r IngestCommentRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.InitiativeID, validation.Required),
		validation.Field(&r.Comment, validation.By(func(any) error {
			if r.Comment.ID == "" {
				return validation.NewError("validation_comment", "comment id is required")
			}
			return nil
		})),
	)
}

// InitiativeListResponse wraps the collection listing.
type InitiativeListResponse struct {
	Initiatives []*domain.Initiative `json:"initiatives"`
	Total       int                  `json:"total"`
}

// IngestResponse reports whether an inbound delivery changed anything.
type IngestResponse struct {
	Applied bool `json:"applied"`
}
