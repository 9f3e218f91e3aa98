package moderation

import (
	"strings"
	"unicode/utf8"

	"github.com/sr-verde/gitmentario/core/config"
	"github.com/sr-verde/gitmentario/internal/model"
)

// Gate decides whether a submission is published, held for review or
// rejected. Rejections are checked before holds, holds before approval.
type Gate struct{}

func NewGate() *Gate {
	return &Gate{}
}

func (g *Gate) Evaluate(sub model.CommentSubmission, cfg config.ModerationConfig) model.ModerationDecision {
	text := strings.ToLower(sub.Author + "\n" + sub.Body)

	if containsAny(text, cfg.BlockedTerms) {
		return model.Reject(model.ReasonBlockedTerm)
	}
	if cfg.BodyLengthLimit > 0 && utf8.RuneCountInString(sub.Body) > cfg.BodyLengthLimit {
		return model.Reject(model.ReasonBodyTooLong)
	}
	if !cfg.AutoApprove || containsAny(text, cfg.HeldTerms) {
		return model.Hold()
	}
	return model.AutoApprove()
}

func containsAny(text string, terms []string) bool {
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term != "" && strings.Contains(text, term) {
			return true
		}
	}
	return false
}
