package model

// BatchFailure reports one message the queue should not consider done.
type BatchFailure struct {
	MessageHandle string `json:"message_handle"`
	Error         string `json:"error"`
	// Retryable is false when redelivery cannot change the outcome.
	Retryable bool `json:"retryable"`
}

// BatchResult is the outcome of reconciling one delivered batch.
type BatchResult struct {
	Processed      int            `json:"processed"`
	Failed         int            `json:"failed"`
	FailedMessages []BatchFailure `json:"failed_messages"`
	// Acked lists handles that were applied and may be acknowledged.
	Acked []string `json:"-"`
}

// NewBatchResult returns an empty result with non-nil slices.
func NewBatchResult() *BatchResult {
	return &BatchResult{FailedMessages: []BatchFailure{}, Acked: []string{}}
}

// Succeed records a handle as processed.
func (r *BatchResult) Succeed(handle string) {
	r.Processed++
	r.Acked = append(r.Acked, handle)
}

// Fail records a handle as failed.
func (r *BatchResult) Fail(handle string, err error) {
	r.Failed++
	r.FailedMessages = append(r.FailedMessages, BatchFailure{
		MessageHandle: handle,
		Error:         err.Error(),
		Retryable:     IsRetryable(err),
	})
}

// Merge folds another partial result into r.
func (r *BatchResult) Merge(other *BatchResult) {
	r.Processed += other.Processed
	r.Failed += other.Failed
	r.FailedMessages = append(r.FailedMessages, other.FailedMessages...)
	r.Acked = append(r.Acked, other.Acked...)
}
