package service

import "errors"

// Error kinds returned by the assessment services. Handlers map them onto
// HTTP status codes with errors.Is.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
	ErrExpired      = errors.New("expired")
	ErrValidation   = errors.New("validation failed")
	ErrUpstream     = errors.New("upstream unavailable")
)

// kindError is a sentinel that also matches its kind.
type kindError struct {
	msg  string
	kind error
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Is(target error) bool { return target == e.kind }

func newKindError(kind error, msg string) error {
	return &kindError{msg: msg, kind: kind}
}

var (
	ErrApplicationNotFound  = newKindError(ErrNotFound, "application not found")
	ErrAttemptNotFound      = newKindError(ErrNotFound, "assessment attempt not found")
	ErrApplicationWithdrawn = newKindError(ErrInvalidState, "application has been withdrawn")
	ErrAssessmentEmpty      = newKindError(ErrInvalidState, "opportunity has no assessment")
	ErrAssessmentInvalid    = newKindError(ErrInvalidState, "opportunity assessment is malformed")
	ErrAttemptSubmitted     = newKindError(ErrInvalidState, "assessment already submitted")
	ErrSubmitInProgress     = newKindError(ErrInvalidState, "submission already in progress")
	ErrNoWebcamConsent      = newKindError(ErrInvalidState, "webcam consent was not given")
	ErrAttemptExpired       = newKindError(ErrExpired, "assessment time is over")
	ErrInvalidAnswers       = newKindError(ErrValidation, "invalid answers")
	ErrInvalidQuestion      = newKindError(ErrValidation, "question is not a code question")
	ErrLanguageNotAllowed   = newKindError(ErrValidation, "language not allowed for this question")
	ErrInvalidSnapshot      = newKindError(ErrValidation, "invalid snapshot payload")
	ErrUpstreamUnavailable  = newKindError(ErrUpstream, "code execution service unavailable")
	ErrSnapshotStorage      = newKindError(ErrUpstream, "snapshot storage unavailable")
)
