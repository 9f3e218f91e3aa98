package forge_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sr-verde/gitmentario/internal/forge"
)

var _ = Describe("GitLab client", func() {
	var (
		ctx    context.Context
		mock   *gitlabAPIMock
		client forge.Client
	)

	BeforeEach(func() {
		ctx = context.Background()
		mock = newGitLabAPIMock()
		mock.start()
		DeferCleanup(mock.close)

		var err error
		client, err = forge.NewGitLab("token", "42", mock.server.URL)
		Expect(err).NotTo(HaveOccurred())
	})

	It("reads a raw file from a branch", func() {
		mock.files["content/posts/hello/index.md"] = "---\ntitle: Hello\n---\n"

		content, err := client.ReadFile(ctx, "content/posts/hello/index.md", "main")
		Expect(err).NotTo(HaveOccurred())
		Expect(string(content)).To(ContainSubstring("title: Hello"))
		Expect(mock.lastRef).To(Equal("main"))
	})

	It("reports missing files as not found", func() {
		_, err := client.ReadFile(ctx, "content/missing.md", "main")
		Expect(err).To(MatchError(forge.ErrNotFound))
		Expect(forge.Retryable(err)).To(BeFalse())
	})

	It("creates a file with a single create action", func() {
		ref, err := client.CreateFile(ctx, "content/posts/hello/comments/1.md", "main", []byte("body\n"), "💬 Add comment from Ada")
		Expect(err).NotTo(HaveOccurred())
		Expect(string(ref)).To(Equal("6104942438c14ec7bd21c6cd5bd995272b3faff6"))

		Expect(mock.commits).To(HaveLen(1))
		commit := mock.commits[0]
		Expect(commit.Branch).To(Equal("main"))
		Expect(commit.CommitMessage).To(Equal("💬 Add comment from Ada"))
		Expect(commit.Actions).To(HaveLen(1))
		Expect(commit.Actions[0].Action).To(Equal("create"))
		Expect(commit.Actions[0].FilePath).To(Equal("content/posts/hello/comments/1.md"))
		Expect(commit.Actions[0].Content).To(Equal("body\n"))
	})

	It("maps an existing file to a conflict", func() {
		mock.files["content/posts/hello/comments/1.md"] = "taken"

		_, err := client.CreateFile(ctx, "content/posts/hello/comments/1.md", "main", []byte("x"), "msg")
		Expect(err).To(MatchError(forge.ErrConflict))
		Expect(forge.Retryable(err)).To(BeFalse())
	})

	It("maps authentication failures", func() {
		mock.status = http.StatusUnauthorized

		_, err := client.CreateFile(ctx, "a.md", "main", []byte("x"), "msg")
		Expect(err).To(MatchError(forge.ErrAuth))
		Expect(forge.Retryable(err)).To(BeTrue())
	})

	It("maps server errors to network errors", func() {
		mock.status = http.StatusBadGateway

		_, err := client.CreateFile(ctx, "a.md", "main", []byte("x"), "msg")
		Expect(err).To(MatchError(forge.ErrNetwork))
		Expect(forge.Retryable(err)).To(BeTrue())
	})

	It("maps an unreachable instance to a network error", func() {
		mock.close()

		_, err := client.ReadFile(ctx, "a.md", "main")
		Expect(err).To(MatchError(forge.ErrNetwork))
	})

	It("creates and deletes branches", func() {
		ref, err := client.CreateBranch(ctx, "comment/posts-hello-1", "main")
		Expect(err).NotTo(HaveOccurred())
		Expect(string(ref)).To(Equal("comment/posts-hello-1"))
		Expect(mock.branches).To(HaveKeyWithValue("comment/posts-hello-1", "main"))

		Expect(client.DeleteBranch(ctx, "comment/posts-hello-1")).To(Succeed())
		Expect(mock.branches).NotTo(HaveKey("comment/posts-hello-1"))
	})

	It("reports an existing branch", func() {
		mock.branches["comment/posts-hello-1"] = "main"

		_, err := client.CreateBranch(ctx, "comment/posts-hello-1", "main")
		Expect(err).To(MatchError(forge.ErrAlreadyExists))
	})

	It("opens a merge request that removes the source branch", func() {
		ref, err := client.CreateReviewRequest(ctx, forge.ReviewRequestParams{
			SourceBranch: "comment/posts-hello-1",
			TargetBranch: "main",
			Title:        "💬 Add comment from Ada",
			Description:  "New comment on posts/hello",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(ref.ID).To(Equal("!7"))
		Expect(ref.URL).To(Equal("https://gitlab.test/group/site/-/merge_requests/7"))

		Expect(mock.mergeRequests).To(HaveLen(1))
		Expect(mock.mergeRequests[0].SourceBranch).To(Equal("comment/posts-hello-1"))
		Expect(mock.mergeRequests[0].TargetBranch).To(Equal("main"))
		Expect(mock.mergeRequests[0].RemoveSourceBranch).To(BeTrue())
	})
})

type gitlabCommitAction struct {
	Action   string `json:"action"`
	FilePath string `json:"file_path"`
	Content  string `json:"content"`
}

type gitlabCommitRequest struct {
	Branch        string               `json:"branch"`
	CommitMessage string               `json:"commit_message"`
	Actions       []gitlabCommitAction `json:"actions"`
}

type gitlabMergeRequest struct {
	Title              string `json:"title"`
	Description        string `json:"description"`
	SourceBranch       string `json:"source_branch"`
	TargetBranch       string `json:"target_branch"`
	RemoveSourceBranch bool   `json:"remove_source_branch"`
}

type gitlabAPIMock struct {
	server        *httptest.Server
	mu            sync.Mutex
	closeOnce     sync.Once
	files         map[string]string
	branches      map[string]string
	commits       []gitlabCommitRequest
	mergeRequests []gitlabMergeRequest
	lastRef       string
	status        int
}

func newGitLabAPIMock() *gitlabAPIMock {
	return &gitlabAPIMock{
		files:    make(map[string]string),
		branches: make(map[string]string),
	}
}

func (m *gitlabAPIMock) start() {
	const project = "/api/v4/projects/42"
	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		defer m.mu.Unlock()

		if m.status != 0 && strings.HasPrefix(r.URL.Path, project) {
			writeJSON(w, m.status, map[string]string{"message": http.StatusText(m.status)})
			return
		}

		path := r.URL.Path
		switch {
		case strings.HasPrefix(path, project+"/repository/files/") && strings.HasSuffix(path, "/raw") && r.Method == http.MethodGet:
			m.handleRawFile(w, r, strings.TrimSuffix(strings.TrimPrefix(path, project+"/repository/files/"), "/raw"))
		case path == project+"/repository/commits" && r.Method == http.MethodPost:
			m.handleCommit(w, r)
		case path == project+"/repository/branches" && r.Method == http.MethodPost:
			m.handleCreateBranch(w, r)
		case strings.HasPrefix(path, project+"/repository/branches/") && r.Method == http.MethodDelete:
			delete(m.branches, strings.TrimPrefix(path, project+"/repository/branches/"))
			w.WriteHeader(http.StatusNoContent)
		case path == project+"/merge_requests" && r.Method == http.MethodPost:
			m.handleMergeRequest(w, r)
		default:
			http.NotFound(w, r)
		}
	}))
}

func (m *gitlabAPIMock) close() {
	m.closeOnce.Do(m.server.Close)
}

func (m *gitlabAPIMock) handleRawFile(w http.ResponseWriter, r *http.Request, file string) {
	m.lastRef = r.URL.Query().Get("ref")
	content, ok := m.files[file]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "404 File Not Found"})
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(content))
}

func (m *gitlabAPIMock) handleCommit(w http.ResponseWriter, r *http.Request) {
	var req gitlabCommitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}
	for _, a := range req.Actions {
		if _, exists := m.files[a.FilePath]; exists {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "A file with this name already exists"})
			return
		}
	}
	for _, a := range req.Actions {
		m.files[a.FilePath] = a.Content
	}
	m.commits = append(m.commits, req)
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":       "6104942438c14ec7bd21c6cd5bd995272b3faff6",
		"short_id": "6104942438c",
		"title":    req.CommitMessage,
	})
}

func (m *gitlabAPIMock) handleCreateBranch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Branch string `json:"branch"`
		Ref    string `json:"ref"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Branch == "" {
		req.Branch = r.URL.Query().Get("branch")
		req.Ref = r.URL.Query().Get("ref")
	}
	if _, exists := m.branches[req.Branch]; exists {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Branch already exists"})
		return
	}
	m.branches[req.Branch] = req.Ref
	writeJSON(w, http.StatusCreated, map[string]any{"name": req.Branch})
}

func (m *gitlabAPIMock) handleMergeRequest(w http.ResponseWriter, r *http.Request) {
	var req gitlabMergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}
	m.mergeRequests = append(m.mergeRequests, req)
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":      1007,
		"iid":     7,
		"web_url": "https://gitlab.test/group/site/-/merge_requests/7",
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
