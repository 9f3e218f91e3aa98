// Package forgetest provides an in-memory forge.Client for tests.
package forgetest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sr-verde/gitmentario/internal/forge"
)

type Op string

const (
	OpReadFile      Op = "read_file"
	OpCreateFile    Op = "create_file"
	OpCreateBranch  Op = "create_branch"
	OpDeleteBranch  Op = "delete_branch"
	OpCreateRequest Op = "create_review_request"
)

// Fake keeps branches and files in memory. Errors queued with Fail are
// returned in order by the matching operation before it touches any state.
type Fake struct {
	mu       sync.Mutex
	branches map[string]map[string][]byte
	queued   map[Op][]error
	lost     map[Op][]error
	calls    map[Op]int
	requests []forge.ReviewRequestParams
	commits  int
	messages []string
}

// New returns a Fake with the given branches, empty.
func New(branches ...string) *Fake {
	f := &Fake{
		branches: make(map[string]map[string][]byte),
		queued:   make(map[Op][]error),
		lost:     make(map[Op][]error),
		calls:    make(map[Op]int),
	}
	for _, b := range branches {
		f.branches[b] = make(map[string][]byte)
	}
	return f
}

// Seed writes a file without counting a commit.
func (f *Fake) Seed(branch, path string, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.branches[branch] == nil {
		f.branches[branch] = make(map[string][]byte)
	}
	f.branches[branch][path] = content
}

// Fail queues errors for op. A nil entry lets that call through.
func (f *Fake) Fail(op Op, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queued[op] = append(f.queued[op], errs...)
}

// Lose queues errors that op returns after it took effect, as when the
// response of a successful write never reaches the caller. Only writes
// (OpCreateFile, OpCreateBranch, OpCreateRequest) honour it.
func (f *Fake) Lose(op Op, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lost[op] = append(f.lost[op], errs...)
}

func (f *Fake) Calls(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *Fake) Commits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commits
}

func (f *Fake) Messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messages...)
}

func (f *Fake) Requests() []forge.ReviewRequestParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]forge.ReviewRequestParams(nil), f.requests...)
}

func (f *Fake) HasBranch(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.branches[name]
	return ok
}

func (f *Fake) Branches() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.branches))
	for name := range f.branches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Files returns the paths present on branch, sorted.
func (f *Fake) Files(branch string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	paths := make([]string, 0, len(f.branches[branch]))
	for p := range f.branches[branch] {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (f *Fake) File(branch, path string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.branches[branch][path]
	return content, ok
}

// begin records the call and pops a queued error. Callers hold f.mu.
func (f *Fake) begin(ctx context.Context, op Op) error {
	f.calls[op]++
	if err := ctx.Err(); err != nil {
		return err
	}
	if q := f.queued[op]; len(q) > 0 {
		f.queued[op] = q[1:]
		return q[0]
	}
	return nil
}

// end pops an error queued with Lose. Callers hold f.mu.
func (f *Fake) end(op Op) error {
	if q := f.lost[op]; len(q) > 0 {
		f.lost[op] = q[1:]
		return q[0]
	}
	return nil
}

func (f *Fake) ReadFile(ctx context.Context, path, branch string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, OpReadFile); err != nil {
		return nil, err
	}
	files, ok := f.branches[branch]
	if !ok {
		return nil, fmt.Errorf("branch %s: %w", branch, forge.ErrNotFound)
	}
	content, ok := files[path]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, forge.ErrNotFound)
	}
	return content, nil
}

func (f *Fake) CreateFile(ctx context.Context, path, branch string, content []byte, message string) (forge.CommitRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, OpCreateFile); err != nil {
		return "", err
	}
	files, ok := f.branches[branch]
	if !ok {
		return "", fmt.Errorf("branch %s: %w", branch, forge.ErrNotFound)
	}
	if _, exists := files[path]; exists {
		return "", fmt.Errorf("%s: %w", path, forge.ErrConflict)
	}
	files[path] = append([]byte(nil), content...)
	f.commits++
	f.messages = append(f.messages, message)
	if err := f.end(OpCreateFile); err != nil {
		return "", err
	}
	return forge.CommitRef(fmt.Sprintf("%040x", f.commits)), nil
}

func (f *Fake) CreateBranch(ctx context.Context, name, from string) (forge.BranchRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, OpCreateBranch); err != nil {
		return "", err
	}
	if _, exists := f.branches[name]; exists {
		return "", fmt.Errorf("%s: %w", name, forge.ErrAlreadyExists)
	}
	base, ok := f.branches[from]
	if !ok {
		return "", fmt.Errorf("branch %s: %w", from, forge.ErrNotFound)
	}
	files := make(map[string][]byte, len(base))
	for p, c := range base {
		files[p] = c
	}
	f.branches[name] = files
	if err := f.end(OpCreateBranch); err != nil {
		return "", err
	}
	return forge.BranchRef(name), nil
}

func (f *Fake) DeleteBranch(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, OpDeleteBranch); err != nil {
		return err
	}
	if _, ok := f.branches[name]; !ok {
		return fmt.Errorf("branch %s: %w", name, forge.ErrNotFound)
	}
	delete(f.branches, name)
	return nil
}

func (f *Fake) CreateReviewRequest(ctx context.Context, params forge.ReviewRequestParams) (forge.RequestRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, OpCreateRequest); err != nil {
		return forge.RequestRef{}, err
	}
	if _, ok := f.branches[params.SourceBranch]; !ok {
		return forge.RequestRef{}, fmt.Errorf("branch %s: %w", params.SourceBranch, forge.ErrNotFound)
	}
	f.requests = append(f.requests, params)
	n := len(f.requests)
	if err := f.end(OpCreateRequest); err != nil {
		return forge.RequestRef{}, err
	}
	return forge.RequestRef{
		ID:  fmt.Sprintf("!%d", n),
		URL: fmt.Sprintf("https://forge.test/merge_requests/%d", n),
	}, nil
}

var _ forge.Client = (*Fake)(nil)
