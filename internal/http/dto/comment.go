package dto

import (
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/sr-verde/gitmentario/internal/model"
)

// SubmitCommentRequest is the body of POST /api/v1/comments.
type SubmitCommentRequest struct {
	ContentID string `json:"content_id" binding:"required,max=1024" jsonschema:"required,maxLength=1024,description=Site-relative content id such as posts/hello-world"`
	Author    string `json:"author" binding:"required,max=64" jsonschema:"required,maxLength=64,description=Display name"`
	Message   string `json:"message" binding:"required,max=65536" jsonschema:"required,maxLength=65536,description=Markdown body"`
	Contact   string `json:"contact,omitempty" binding:"omitempty,max=320" jsonschema:"maxLength=320,description=Optional contact. Stored hashed unless configured otherwise"`
	Parent    string `json:"parent,omitempty" binding:"omitempty,numeric,max=32" jsonschema:"maxLength=32,pattern=^[0-9]+$,description=Token of the comment this one replies to"`
}

func (r SubmitCommentRequest) Submission(id string) model.CommentSubmission {
	return model.CommentSubmission{
		ID:        id,
		ContentID: r.ContentID,
		Author:    r.Author,
		Contact:   r.Contact,
		Body:      r.Message,
		Parent:    model.Token(strings.TrimSpace(r.Parent)),
	}
}

type SubmitCommentResponse struct {
	Status model.Status `json:"status"`
	Token  string       `json:"token,omitempty"`
}

// SubmitCommentSchema is the JSON schema of SubmitCommentRequest.
func SubmitCommentSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	return reflector.Reflect(&SubmitCommentRequest{})
}
