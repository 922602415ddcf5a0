package batch

// Status is the processing outcome of a single upsert batch.
type Status string

// Batch status values.
const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Result is the outcome of writing one batch of chunks to the index.
// Offset is the position of the batch's first chunk in the input sequence.
type Result struct {
	offset   int
	size     int
	attempts int
	status   Status
	err      error
}

// NewOK creates a successful batch result.
func NewOK(offset, size, attempts int) Result {
	return Result{offset: offset, size: size, attempts: attempts, status: StatusOK}
}

// NewError creates a failed batch result.
func NewError(offset, size, attempts int, err error) Result {
	return Result{offset: offset, size: size, attempts: attempts, status: StatusError, err: err}
}

// Offset returns the chunk offset of the batch start.
func (r Result) Offset() int { return r.offset }

// Size returns the number of chunks in the batch.
func (r Result) Size() int { return r.size }

// Attempts returns how many write attempts were made.
func (r Result) Attempts() int { return r.attempts }

// Status returns the processing outcome.
func (r Result) Status() Status { return r.status }

// Err returns the error, if any.
func (r Result) Err() error { return r.err }
