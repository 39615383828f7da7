package constants

// JobStatus is the canonical status reported for a batch job. These exact
// strings are part of the polling contract and are stored verbatim.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusNotFound   JobStatus = "not_found"
)

// ErrorKind identifies a terminal failure class. Kinds are reported to
// pollers as "error:<kind>".
type ErrorKind string

const (
	ErrKindInvalidKey          ErrorKind = "invalid_key"
	ErrKindRateLimit           ErrorKind = "rate_limit"
	ErrKindInsufficientCredits ErrorKind = "insufficient_credits"
	ErrKindNoValidData         ErrorKind = "no_valid_data"
	ErrKindBatchNotFound       ErrorKind = "batch_not_found"
	ErrKindNoImages            ErrorKind = "no_images"
	ErrKindGeneric             ErrorKind = "extraction_failed"
)

// Status renders the kind as a terminal job status string.
func (k ErrorKind) Status() JobStatus {
	return JobStatus("error:" + string(k))
}

// Fatal reports whether this kind aborts the remainder of a batch.
// Anything else is a per-image failure that only skips that image.
func (k ErrorKind) Fatal() bool {
	switch k {
	case ErrKindInvalidKey, ErrKindRateLimit, ErrKindInsufficientCredits:
		return true
	}
	return false
}

// OCRStatus records what happened on the OCR leg of a per-image step.
type OCRStatus string

const (
	OCRStatusSkipped OCRStatus = "skipped"
	OCRStatusFailed  OCRStatus = "failed"
	OCRStatusEmpty   OCRStatus = "empty"
	OCRStatusSuccess OCRStatus = "success"
)
