package ledger

import (
	"errors"
	"fmt"
	"strings"
)

// Code identifies an error category. Codes are stable strings so that CLI
// output and scenario files can refer to them.
type Code string

const (
	// CodeInvalidDraft indicates a draft is missing or has malformed fields.
	CodeInvalidDraft Code = "INVALID_DRAFT"

	// CodeDuplicateFlag indicates the user already flagged the record.
	CodeDuplicateFlag Code = "DUPLICATE_FLAG"

	// CodePartitionMismatch indicates an actor tried to act on a record
	// outside their own partition.
	CodePartitionMismatch Code = "PARTITION_MISMATCH"

	// CodeNotAuthorized indicates the actor's role does not permit the operation.
	CodeNotAuthorized Code = "NOT_AUTHORIZED"

	// CodeRecordNotFound indicates the referenced record does not exist.
	CodeRecordNotFound Code = "RECORD_NOT_FOUND"

	// CodeActorNotFound indicates the referenced actor does not exist.
	CodeActorNotFound Code = "ACTOR_NOT_FOUND"

	// CodeInvalidActor indicates an actor registration is malformed.
	CodeInvalidActor Code = "INVALID_ACTOR"

	// CodeStorage indicates the repository failed. Callers decide whether to retry.
	CodeStorage Code = "STORAGE_ERROR"
)

// Error is the typed error returned by ledger, flagging and service
// operations. Match categories with errors.Is against the Err* sentinels.
type Error struct {
	Code    Code
	Message string

	// RecordID, UserID and PartitionID carry context when known.
	RecordID    string
	UserID      string
	PartitionID PartitionID

	// Err is the underlying cause, if any.
	Err error
}

// Sentinels for errors.Is. They carry only a code.
var (
	ErrInvalidDraft      = &Error{Code: CodeInvalidDraft}
	ErrDuplicateFlag     = &Error{Code: CodeDuplicateFlag}
	ErrPartitionMismatch = &Error{Code: CodePartitionMismatch}
	ErrNotAuthorized     = &Error{Code: CodeNotAuthorized}
	ErrRecordNotFound    = &Error{Code: CodeRecordNotFound}
	ErrActorNotFound     = &Error{Code: CodeActorNotFound}
	ErrInvalidActor      = &Error{Code: CodeInvalidActor}
	ErrStorage           = &Error{Code: CodeStorage}
)

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Code))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	var ctx []string
	if e.RecordID != "" {
		ctx = append(ctx, "record="+e.RecordID)
	}
	if e.UserID != "" {
		ctx = append(ctx, "user="+e.UserID)
	}
	if e.PartitionID != 0 {
		ctx = append(ctx, fmt.Sprintf("partition=%d", e.PartitionID))
	}
	if len(ctx) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(ctx, ", "))
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code, so errors.Is(err, ErrDuplicateFlag)
// works regardless of message and context.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) Code {
	var le *Error
	if errors.As(err, &le) {
		return le.Code
	}
	return ""
}

// StorageError wraps a repository failure.
func StorageError(op string, err error) *Error {
	return &Error{
		Code:    CodeStorage,
		Message: op,
		Err:     err,
	}
}

// WrapStorage returns err unchanged if it already carries a code, and
// otherwise wraps it as a storage error for op. A nil err stays nil.
func WrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	if CodeOf(err) != "" {
		return err
	}
	return StorageError(op, err)
}

func invalidDraft(format string, args ...any) *Error {
	return &Error{
		Code:    CodeInvalidDraft,
		Message: fmt.Sprintf(format, args...),
	}
}
