package forge_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sr-verde/gitmentario/internal/forge"
)

var _ = Describe("GitHub client", func() {
	var (
		ctx    context.Context
		mock   *githubAPIMock
		client forge.Client
	)

	BeforeEach(func() {
		ctx = context.Background()
		mock = newGitHubAPIMock()
		mock.start()
		DeferCleanup(mock.server.Close)

		var err error
		client, err = forge.NewGitHub("token", "octo/site", mock.server.URL)
		Expect(err).NotTo(HaveOccurred())
	})

	It("rejects a repository without owner", func() {
		_, err := forge.NewGitHub("token", "site", "")
		Expect(err).To(HaveOccurred())
	})

	It("reads and decodes file contents", func() {
		mock.files["content/posts/hello/index.md"] = "# Hello\n"

		content, err := client.ReadFile(ctx, "content/posts/hello/index.md", "main")
		Expect(err).NotTo(HaveOccurred())
		Expect(string(content)).To(Equal("# Hello\n"))
		Expect(mock.lastRef).To(Equal("main"))
	})

	It("reports missing files as not found", func() {
		_, err := client.ReadFile(ctx, "content/missing.md", "main")
		Expect(err).To(MatchError(forge.ErrNotFound))
	})

	It("creates a file and returns the commit sha", func() {
		ref, err := client.CreateFile(ctx, "content/posts/hello/comments/1.md", "main", []byte("body\n"), "💬 Add comment from Ada")
		Expect(err).NotTo(HaveOccurred())
		Expect(string(ref)).To(Equal("commit-1"))
		Expect(mock.files).To(HaveKeyWithValue("content/posts/hello/comments/1.md", "body\n"))
		Expect(mock.lastMessage).To(Equal("💬 Add comment from Ada"))
		Expect(mock.lastBranch).To(Equal("main"))
	})

	It("maps an unprocessable create to a conflict", func() {
		mock.files["content/posts/hello/comments/1.md"] = "taken"

		_, err := client.CreateFile(ctx, "content/posts/hello/comments/1.md", "main", []byte("x"), "msg")
		Expect(err).To(MatchError(forge.ErrConflict))
	})

	It("branches from the tip of the base branch", func() {
		ref, err := client.CreateBranch(ctx, "comment/posts-hello-1", "main")
		Expect(err).NotTo(HaveOccurred())
		Expect(string(ref)).To(Equal("comment/posts-hello-1"))
		Expect(mock.refs).To(HaveKeyWithValue("refs/heads/comment/posts-hello-1", "base-sha"))
	})

	It("reports an existing branch", func() {
		mock.refs["refs/heads/comment/posts-hello-1"] = "other"

		_, err := client.CreateBranch(ctx, "comment/posts-hello-1", "main")
		Expect(err).To(MatchError(forge.ErrAlreadyExists))
	})

	It("deletes a branch", func() {
		mock.refs["refs/heads/comment/posts-hello-1"] = "base-sha"

		Expect(client.DeleteBranch(ctx, "comment/posts-hello-1")).To(Succeed())
		Expect(mock.refs).NotTo(HaveKey("refs/heads/comment/posts-hello-1"))
	})

	It("opens a pull request", func() {
		ref, err := client.CreateReviewRequest(ctx, forge.ReviewRequestParams{
			SourceBranch: "comment/posts-hello-1",
			TargetBranch: "main",
			Title:        "💬 Add comment from Ada",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(ref.ID).To(Equal("#3"))
		Expect(ref.URL).To(Equal("https://github.test/octo/site/pull/3"))
	})

	It("maps a failing pull request creation to a network error", func() {
		mock.pullStatus = http.StatusServiceUnavailable

		_, err := client.CreateReviewRequest(ctx, forge.ReviewRequestParams{SourceBranch: "b", TargetBranch: "main"})
		Expect(err).To(MatchError(forge.ErrNetwork))
	})
})

type githubAPIMock struct {
	server      *httptest.Server
	mu          sync.Mutex
	files       map[string]string
	refs        map[string]string
	lastRef     string
	lastMessage string
	lastBranch  string
	commits     int
	pullStatus  int
}

func newGitHubAPIMock() *githubAPIMock {
	return &githubAPIMock{
		files: make(map[string]string),
		refs:  map[string]string{"refs/heads/main": "base-sha"},
	}
}

func (m *githubAPIMock) start() {
	const repo = "/api/v3/repos/octo/site"
	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		defer m.mu.Unlock()

		path := r.URL.Path
		switch {
		case strings.HasPrefix(path, repo+"/contents/") && r.Method == http.MethodGet:
			m.handleGetContents(w, r, strings.TrimPrefix(path, repo+"/contents/"))
		case strings.HasPrefix(path, repo+"/contents/") && r.Method == http.MethodPut:
			m.handleCreateFile(w, r, strings.TrimPrefix(path, repo+"/contents/"))
		case strings.HasPrefix(path, repo+"/git/ref/") && r.Method == http.MethodGet:
			m.handleGetRef(w, "refs/"+strings.TrimPrefix(path, repo+"/git/ref/"))
		case path == repo+"/git/refs" && r.Method == http.MethodPost:
			m.handleCreateRef(w, r)
		case strings.HasPrefix(path, repo+"/git/refs/") && r.Method == http.MethodDelete:
			delete(m.refs, "refs/"+strings.TrimPrefix(path, repo+"/git/refs/"))
			w.WriteHeader(http.StatusNoContent)
		case path == repo+"/pulls" && r.Method == http.MethodPost:
			m.handleCreatePull(w)
		default:
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		}
	}))
}

func (m *githubAPIMock) handleGetContents(w http.ResponseWriter, r *http.Request, file string) {
	m.lastRef = r.URL.Query().Get("ref")
	content, ok := m.files[file]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"type":     "file",
		"encoding": "base64",
		"path":     file,
		"content":  base64.StdEncoding.EncodeToString([]byte(content)),
	})
}

func (m *githubAPIMock) handleCreateFile(w http.ResponseWriter, r *http.Request, file string) {
	var req struct {
		Message string `json:"message"`
		Content []byte `json:"content"`
		Branch  string `json:"branch"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}
	if _, exists := m.files[file]; exists {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "Invalid request.\n\n\"sha\" wasn't supplied."})
		return
	}
	m.files[file] = string(req.Content)
	m.lastMessage = req.Message
	m.lastBranch = req.Branch
	m.commits++
	writeJSON(w, http.StatusCreated, map[string]any{
		"content": map[string]any{"path": file},
		"commit":  map[string]any{"sha": "commit-" + string(rune('0'+m.commits))},
	})
}

func (m *githubAPIMock) handleGetRef(w http.ResponseWriter, ref string) {
	sha, ok := m.refs[ref]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ref":    ref,
		"object": map[string]any{"type": "commit", "sha": sha},
	})
}

func (m *githubAPIMock) handleCreateRef(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Ref string `json:"ref"`
		SHA string `json:"sha"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}
	if _, exists := m.refs[req.Ref]; exists {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "Reference already exists"})
		return
	}
	m.refs[req.Ref] = req.SHA
	writeJSON(w, http.StatusCreated, map[string]any{
		"ref":    req.Ref,
		"object": map[string]any{"type": "commit", "sha": req.SHA},
	})
}

func (m *githubAPIMock) handleCreatePull(w http.ResponseWriter) {
	if m.pullStatus != 0 {
		writeJSON(w, m.pullStatus, map[string]string{"message": http.StatusText(m.pullStatus)})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"number":   3,
		"html_url": "https://github.test/octo/site/pull/3",
	})
}
