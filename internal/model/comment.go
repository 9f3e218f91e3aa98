package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

var ErrValidation = errors.New("invalid submission")

const (
	MaxAuthorLength    = 64
	MaxContentIDLength = 1024
)

// Token identifies a comment inside its content bucket. Tokens are decimal
// snowflake ids: unique, time-ordered, and safe to use as a filename.
type Token string

func (t Token) String() string {
	return string(t)
}

func (t Token) Valid() bool {
	if t == "" || len(t) > 32 {
		return false
	}
	for _, r := range t {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// CommentSubmission is a visitor comment as handed over by the request layer.
type CommentSubmission struct {
	ID          string    // request-scoped id, logs only
	ContentID   string    // site-relative content identifier, e.g. "posts/hello-world"
	Author      string    // display name
	Contact     string    // optional, masked before persisting unless configured otherwise
	Body        string    // markdown body
	Parent      Token     // optional parent comment for threaded replies
	SubmittedAt time.Time // set server-side
}

// Normalize returns a copy with surrounding whitespace removed and line endings unified.
func (s CommentSubmission) Normalize() CommentSubmission {
	s.ContentID = strings.TrimSpace(s.ContentID)
	s.Author = strings.TrimSpace(s.Author)
	s.Contact = strings.TrimSpace(s.Contact)
	s.Parent = Token(strings.TrimSpace(string(s.Parent)))
	body := strings.ReplaceAll(s.Body, "\r\n", "\n")
	body = strings.ReplaceAll(body, "\r", "\n")
	s.Body = strings.TrimSpace(body)
	return s
}

// Validate checks a normalized submission. Every failure wraps ErrValidation.
func (s CommentSubmission) Validate() error {
	if s.Author == "" {
		return fmt.Errorf("%w: author is required", ErrValidation)
	}
	if utf8.RuneCountInString(s.Author) > MaxAuthorLength {
		return fmt.Errorf("%w: author exceeds %d characters", ErrValidation, MaxAuthorLength)
	}
	if s.Body == "" {
		return fmt.Errorf("%w: message is empty", ErrValidation)
	}
	if err := ValidateContentID(s.ContentID); err != nil {
		return err
	}
	if s.Parent != "" && !s.Parent.Valid() {
		return fmt.Errorf("%w: parent %q is not a comment token", ErrValidation, s.Parent)
	}
	return nil
}

// ValidateContentID accepts canonical site-relative paths only: ASCII, no
// empty or dot segments, no leading or trailing slash. Rejecting everything
// else keeps the path mapping injective.
func ValidateContentID(contentID string) error {
	if contentID == "" {
		return fmt.Errorf("%w: content id is required", ErrValidation)
	}
	if len(contentID) > MaxContentIDLength {
		return fmt.Errorf("%w: content id exceeds %d characters", ErrValidation, MaxContentIDLength)
	}
	for _, r := range contentID {
		if !isContentIDRune(r) {
			return fmt.Errorf("%w: content id contains %q", ErrValidation, r)
		}
	}
	for _, segment := range strings.Split(contentID, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return fmt.Errorf("%w: content id %q is not a canonical path", ErrValidation, contentID)
		}
	}
	return nil
}

func isContentIDRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-', r == '_', r == '.', r == '~', r == '/':
		return true
	}
	return false
}

// Bucket is the resolved content bucket a comment belongs to.
type Bucket struct {
	ContentID string
	Dir       string // repository directory of the content, e.g. "content/posts/hello-world"
}

// RenderedComment is the serialized file together with its repository path.
type RenderedComment struct {
	Path      string
	Content   []byte
	Token     Token
	State     ModerationState
	ContentID string
	Author    string
}
