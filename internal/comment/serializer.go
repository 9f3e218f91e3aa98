package comment

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sr-verde/gitmentario/core/config"
	"github.com/sr-verde/gitmentario/internal/model"
)

const delimiter = "---"

var (
	ErrMalformed = errors.New("malformed comment file")

	// A body line that a front matter parser could take for a delimiter,
	// including lines already escaped by us or the author.
	delimiterLine = regexp.MustCompile(`^\\*(---|\+\+\+)\s*$`)
	escapedLine   = regexp.MustCompile(`^\\+(---|\+\+\+)\s*$`)
)

type frontMatter struct {
	Token       string `yaml:"token"`
	Page        string `yaml:"page"`
	Author      string `yaml:"author"`
	Contact     string `yaml:"contact,omitempty"`
	ContactHash string `yaml:"contact_hash,omitempty"`
	Date        string `yaml:"date"`
	Parent      string `yaml:"parent,omitempty"`
	Moderation  string `yaml:"moderation"`
}

// Document is the logical content of a comment file.
type Document struct {
	Token       model.Token
	ContentID   string
	Author      string
	Contact     string // set only when contacts are stored in clear
	ContactHash string
	Date        time.Time
	Parent      model.Token
	State       model.ModerationState
	Body        string
}

type Serializer struct {
	maskContact bool
	now         func() time.Time
}

func NewSerializer(privacy config.PrivacyConfig) *Serializer {
	return &Serializer{maskContact: privacy.MaskContact, now: time.Now}
}

// Serialize renders sub as a markdown file with YAML front matter. path is
// the already resolved repository path for token.
func (s *Serializer) Serialize(sub model.CommentSubmission, token model.Token, decision model.ModerationDecision, path string) (model.RenderedComment, error) {
	submitted := sub.SubmittedAt
	if submitted.IsZero() {
		submitted = s.now()
	}

	meta := frontMatter{
		Token:      string(token),
		Page:       sub.ContentID,
		Author:     sub.Author,
		Date:       submitted.UTC().Format(time.RFC3339Nano),
		Parent:     string(sub.Parent),
		Moderation: string(decision.State()),
	}
	if sub.Contact != "" {
		if s.maskContact {
			meta.ContactHash = HashContact(sub.Contact)
		} else {
			meta.Contact = sub.Contact
		}
	}

	header, err := yaml.Marshal(&meta)
	if err != nil {
		return model.RenderedComment{}, fmt.Errorf("encoding front matter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(delimiter + "\n")
	buf.Write(header)
	buf.WriteString(delimiter + "\n\n")
	buf.WriteString(escapeBody(sub.Body))
	buf.WriteString("\n")

	return model.RenderedComment{
		Path:      path,
		Content:   buf.Bytes(),
		Token:     token,
		State:     decision.State(),
		ContentID: sub.ContentID,
		Author:    sub.Author,
	}, nil
}

// Deserialize parses a file written by Serialize.
func Deserialize(content []byte) (Document, error) {
	text := string(content)
	if !strings.HasPrefix(text, delimiter+"\n") {
		return Document{}, fmt.Errorf("%w: missing opening delimiter", ErrMalformed)
	}
	text = text[len(delimiter)+1:]

	end := strings.Index(text, "\n"+delimiter+"\n")
	if end < 0 {
		return Document{}, fmt.Errorf("%w: missing closing delimiter", ErrMalformed)
	}
	header, rest := text[:end+1], text[end+len(delimiter)+2:]

	var meta frontMatter
	dec := yaml.NewDecoder(strings.NewReader(header))
	dec.KnownFields(true)
	if err := dec.Decode(&meta); err != nil {
		return Document{}, fmt.Errorf("%w: front matter: %v", ErrMalformed, err)
	}

	date, err := time.Parse(time.RFC3339Nano, meta.Date)
	if err != nil {
		return Document{}, fmt.Errorf("%w: date: %v", ErrMalformed, err)
	}

	state := model.ModerationState(meta.Moderation)
	if !state.Valid() {
		return Document{}, fmt.Errorf("%w: unknown moderation state %q", ErrMalformed, meta.Moderation)
	}

	rest = strings.TrimPrefix(rest, "\n")
	rest = strings.TrimSuffix(rest, "\n")

	return Document{
		Token:       model.Token(meta.Token),
		ContentID:   meta.Page,
		Author:      meta.Author,
		Contact:     meta.Contact,
		ContactHash: meta.ContactHash,
		Date:        date,
		Parent:      model.Token(meta.Parent),
		State:       state,
		Body:        unescapeBody(rest),
	}, nil
}

// HashContact returns the digest stored instead of a visitor's contact.
func HashContact(contact string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(contact))))
	return hex.EncodeToString(sum[:])
}

func escapeBody(body string) string {
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		if delimiterLine.MatchString(line) {
			lines[i] = `\` + line
		}
	}
	return strings.Join(lines, "\n")
}

func unescapeBody(body string) string {
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		if escapedLine.MatchString(line) {
			lines[i] = line[1:]
		}
	}
	return strings.Join(lines, "\n")
}
