package queue

type TaskType string

const (
	// TaskTypeReviewRequest reopens a review request for a branch whose
	// comment commit landed but whose request could not be created.
	TaskTypeReviewRequest TaskType = "review_request"
)

type Task struct {
	TaskType     TaskType
	ContentID    string
	Token        string
	Branch       string
	TargetBranch string
	Title        string
	Description  string
	TraceID      *string
	Attempt      int
}
