package publish_test

import (
	"context"
	"fmt"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sr-verde/gitmentario/internal/forge"
	"github.com/sr-verde/gitmentario/internal/forge/forgetest"
	"github.com/sr-verde/gitmentario/internal/model"
	"github.com/sr-verde/gitmentario/internal/publish"
)

var _ = Describe("ReviewRequest", func() {
	var (
		ctx      context.Context
		fake     *forgetest.Fake
		strategy *publish.ReviewRequest
		rendered model.RenderedComment
		branch   string
	)

	BeforeEach(func() {
		ctx = context.Background()
		fake = forgetest.New("main")
		strategy = publish.NewReviewRequest(fake, "main", testRetry)
		rendered = renderedComment(model.ModerationApproved)
		branch = "comment/posts-hello-world-1790000000000000001"
	})

	It("derives the branch from content id and token", func() {
		Expect(publish.BranchName("posts/hello-world", "1790000000000000001")).To(Equal(branch))
	})

	It("commits to a new branch and opens a request", func() {
		outcome, err := strategy.Publish(ctx, rendered)
		Expect(err).NotTo(HaveOccurred())
		Expect(outcome.Kind).To(Equal(model.OutcomeRequestOpened))
		Expect(outcome.RequestRef).To(Equal("!1"))
		Expect(outcome.BranchRef).To(Equal(branch))
		Expect(outcome.Status()).To(Equal(model.StatusPending))

		_, onBranch := fake.File(branch, rendered.Path)
		Expect(onBranch).To(BeTrue())
		_, onMain := fake.File("main", rendered.Path)
		Expect(onMain).To(BeFalse())

		requests := fake.Requests()
		Expect(requests).To(HaveLen(1))
		Expect(requests[0].SourceBranch).To(Equal(branch))
		Expect(requests[0].TargetBranch).To(Equal("main"))
		Expect(requests[0].Title).To(Equal("💬 Add comment from Ada"))
		Expect(requests[0].Description).To(ContainSubstring(rendered.Path))
	})

	It("labels held comments in the request title", func() {
		rendered = renderedComment(model.ModerationPending)

		_, err := strategy.Publish(ctx, rendered)
		Expect(err).NotTo(HaveOccurred())
		Expect(fake.Requests()[0].Title).To(Equal("[pending] 💬 Add comment from Ada"))
	})

	It("keeps the branch when the request cannot be opened after a branch collision", func() {
		fake.Fail(forgetest.OpCreateBranch, fmt.Errorf("create: %w", forge.ErrAlreadyExists))
		fake.Fail(forgetest.OpCreateRequest, networkErr, networkErr, networkErr)

		_, err := strategy.Publish(ctx, rendered)
		Expect(err).To(HaveOccurred())

		outcome := publish.OutcomeFor(err)
		Expect(outcome.Kind).To(Equal(model.OutcomeFailed))
		Expect(outcome.Failure).To(Equal(model.FailureReviewRequestCreation))
		Expect(outcome.PartialSuccess()).To(BeTrue())
		Expect(outcome.BranchRef).To(HavePrefix(branch + "-1-"))
		Expect(fake.HasBranch(outcome.BranchRef)).To(BeTrue())

		_, committed := fake.File(outcome.BranchRef, rendered.Path)
		Expect(committed).To(BeTrue())

		var pubErr *publish.Error
		Expect(err).To(BeAssignableToTypeOf(pubErr))
		pubErr = err.(*publish.Error)
		Expect(pubErr.Request).NotTo(BeNil())
		Expect(pubErr.Request.SourceBranch).To(Equal(outcome.BranchRef))
	})

	It("fails with a branch collision when the second name is taken too", func() {
		exists := fmt.Errorf("create: %w", forge.ErrAlreadyExists)
		fake.Fail(forgetest.OpCreateBranch, exists, exists)

		_, err := strategy.Publish(ctx, rendered)
		Expect(publish.OutcomeFor(err).Failure).To(Equal(model.FailureBranchCollision))
		Expect(fake.Calls(forgetest.OpCreateBranch)).To(Equal(2))
		Expect(fake.Calls(forgetest.OpCreateFile)).To(BeZero())
	})

	It("deletes the branch when the file already exists", func() {
		fake.Seed("main", rendered.Path, []byte("someone else"))

		_, err := strategy.Publish(ctx, rendered)
		Expect(err).To(MatchError(forge.ErrConflict))
		Expect(fake.HasBranch(branch)).To(BeFalse())
		Expect(fake.Requests()).To(BeEmpty())
	})

	It("retries transient request failures", func() {
		fake.Fail(forgetest.OpCreateRequest, networkErr)

		outcome, err := strategy.Publish(ctx, rendered)
		Expect(err).NotTo(HaveOccurred())
		Expect(outcome.Kind).To(Equal(model.OutcomeRequestOpened))
		Expect(fake.Calls(forgetest.OpCreateRequest)).To(Equal(2))
	})

	It("uses distinct names for repeated collisions", func() {
		exists := fmt.Errorf("create: %w", forge.ErrAlreadyExists)
		fake.Fail(forgetest.OpCreateBranch, exists, nil, exists, nil)

		first, err := strategy.Publish(ctx, rendered)
		Expect(err).NotTo(HaveOccurred())
		second, err := strategy.Publish(ctx, renderedComment(model.ModerationPending))
		Expect(err).NotTo(HaveOccurred())

		Expect(first.BranchRef).NotTo(Equal(second.BranchRef))
		Expect(strings.HasPrefix(first.BranchRef, branch+"-1-")).To(BeTrue())
		Expect(strings.HasPrefix(second.BranchRef, branch+"-2-")).To(BeTrue())
	})
})
