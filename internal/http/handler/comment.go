package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sr-verde/gitmentario/internal/http/dto"
	"github.com/sr-verde/gitmentario/internal/model"
)

const SubmissionIDHeader = "X-Submission-Id"

// Submitter runs a submission to its outcome. *pipeline.Pipeline implements it.
type Submitter interface {
	Submit(ctx context.Context, sub model.CommentSubmission) model.PublishOutcome
}

type CommentHandler struct {
	submitter Submitter
}

func NewCommentHandler(submitter Submitter) *CommentHandler {
	return &CommentHandler{submitter: submitter}
}

func (h *CommentHandler) Submit(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.SubmitCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid comment request", "error", err)
		c.JSON(http.StatusBadRequest, dto.SubmitCommentResponse{Status: model.StatusRejected})
		return
	}

	sub := req.Submission(uuid.NewString())
	sub.SubmittedAt = time.Now().UTC()

	outcome := h.submitter.Submit(ctx, sub)
	resp := dto.SubmitCommentResponse{Status: outcome.Status()}
	if resp.Status == model.StatusPublished || resp.Status == model.StatusPending {
		resp.Token = outcome.Token.String()
	}

	c.Header(SubmissionIDHeader, sub.ID)
	c.JSON(statusCode(outcome), resp)
}

func (h *CommentHandler) Schema(c *gin.Context) {
	c.JSON(http.StatusOK, dto.SubmitCommentSchema())
}

func statusCode(outcome model.PublishOutcome) int {
	switch outcome.Status() {
	case model.StatusPublished:
		return http.StatusCreated
	case model.StatusPending:
		return http.StatusAccepted
	case model.StatusRejected:
		return http.StatusUnprocessableEntity
	}
	if outcome.Failure == model.FailureInternal {
		return http.StatusInternalServerError
	}
	return http.StatusServiceUnavailable
}
