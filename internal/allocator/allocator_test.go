package allocator

import (
	"context"
	"fmt"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sr-verde/gitmentario/common/id"
	"github.com/sr-verde/gitmentario/core/config"
	"github.com/sr-verde/gitmentario/internal/forge"
	"github.com/sr-verde/gitmentario/internal/forge/forgetest"
	"github.com/sr-verde/gitmentario/internal/model"
	"github.com/sr-verde/gitmentario/internal/site"
)

type fixedTokens struct {
	mu     sync.Mutex
	tokens []string
	next   int
}

func (f *fixedTokens) Next() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.tokens[f.next%len(f.tokens)]
	f.next++
	return t
}

var _ = Describe("Allocator", func() {
	var (
		ctx      context.Context
		fake     *forgetest.Fake
		resolver *site.Resolver
		bucket   model.Bucket
	)

	BeforeEach(func() {
		ctx = context.Background()
		fake = forgetest.New("main")
		resolver = site.NewResolver(config.SiteConfig{CommentsDir: "comments", PendingDir: "comments-pending", Extension: ".md"})
		bucket = model.Bucket{ContentID: "posts/hello-world", Dir: "content/posts/hello-world"}
	})

	newAllocator := func(tokens TokenSource) *Allocator {
		return New(tokens, NewLocalLocker(), fake, resolver, Options{Branch: "main", Attempts: 5})
	}

	It("issues distinct tokens to concurrent callers of one bucket", func() {
		gen, err := id.NewGenerator(7)
		Expect(err).NotTo(HaveOccurred())
		alloc := newAllocator(gen)

		const n = 200
		var (
			wg     sync.WaitGroup
			mu     sync.Mutex
			tokens = make(map[model.Token]struct{}, n)
			errs   []error
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				tok, err := alloc.Allocate(ctx, bucket)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs = append(errs, err)
					return
				}
				tokens[tok] = struct{}{}
			}()
		}
		wg.Wait()

		Expect(errs).To(BeEmpty())
		Expect(tokens).To(HaveLen(n))
	})

	It("draws again when the token exists in the repository", func() {
		fake.Seed("main", "content/posts/hello-world/comments-pending/100.md", []byte("taken"))
		alloc := newAllocator(&fixedTokens{tokens: []string{"100", "101"}})

		tok, err := alloc.Allocate(ctx, bucket)
		Expect(err).NotTo(HaveOccurred())
		Expect(tok).To(Equal(model.Token("101")))
	})

	It("never issues the same token twice for a bucket", func() {
		alloc := newAllocator(&fixedTokens{tokens: []string{"100", "100", "101"}})

		first, err := alloc.Allocate(ctx, bucket)
		Expect(err).NotTo(HaveOccurred())
		second, err := alloc.Allocate(ctx, bucket)
		Expect(err).NotTo(HaveOccurred())

		Expect(first).To(Equal(model.Token("100")))
		Expect(second).To(Equal(model.Token("101")))
	})

	It("scopes issued tokens to their bucket", func() {
		alloc := newAllocator(&fixedTokens{tokens: []string{"100"}})
		other := model.Bucket{ContentID: "posts/other", Dir: "content/posts/other"}

		_, err := alloc.Allocate(ctx, bucket)
		Expect(err).NotTo(HaveOccurred())
		tok, err := alloc.Allocate(ctx, other)
		Expect(err).NotTo(HaveOccurred())
		Expect(tok).To(Equal(model.Token("100")))
	})

	It("gives up after the collision budget", func() {
		fake.Seed("main", "content/posts/hello-world/comments/100.md", []byte("taken"))
		alloc := newAllocator(&fixedTokens{tokens: []string{"100"}})

		_, err := alloc.Allocate(ctx, bucket)
		Expect(err).To(MatchError(ErrAllocationExhausted))
		Expect(fake.Calls(forgetest.OpReadFile)).To(Equal(5))
	})

	It("surfaces forge failures", func() {
		fake.Fail(forgetest.OpReadFile, fmt.Errorf("read: %w", forge.ErrNetwork))
		alloc := newAllocator(&fixedTokens{tokens: []string{"100"}})

		_, err := alloc.Allocate(ctx, bucket)
		Expect(err).To(MatchError(forge.ErrNetwork))
		Expect(err).NotTo(MatchError(ErrAllocationExhausted))
	})

	It("fails when the bucket lock cannot be taken", func() {
		locker := NewLocalLocker()
		unlock, err := locker.Lock(ctx, bucket.ContentID)
		Expect(err).NotTo(HaveOccurred())
		defer unlock()

		alloc := New(&fixedTokens{tokens: []string{"1"}}, locker, fake, resolver, Options{Branch: "main", Attempts: 5})
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err = alloc.Allocate(cancelled, bucket)
		Expect(err).To(MatchError(context.Canceled))
		Expect(fake.Calls(forgetest.OpReadFile)).To(BeZero())
	})
})
