package installer

import (
	"errors"
	"fmt"
)

// Kind classifies why an install failed
type Kind int

const (
	// KindNone means no error
	KindNone Kind = iota
	// KindUsage is a missing or unusable argument
	KindUsage
	// KindDownload is a transport failure or a non-success HTTP status
	KindDownload
	// KindFilesystem is a failure creating the install directory or extracting into it
	KindFilesystem
	// KindMissingBinary means code-latest is absent or not executable after extraction
	KindMissingBinary
	// KindPatch means the patch invocation failed
	KindPatch
	// KindUnknown is any error not produced by this package
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindUsage:
		return "usage"
	case KindDownload:
		return "download"
	case KindFilesystem:
		return "filesystem"
	case KindMissingBinary:
		return "missing-binary"
	case KindPatch:
		return "patch"
	default:
		return "unknown"
	}
}

// Error is returned by Install for every fatal condition
type Error struct {
	Kind Kind
	// Op names the step that failed
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, KindNone for nil and KindUnknown for foreign errors
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var ierr *Error
	if errors.As(err, &ierr) {
		return ierr.Kind
	}
	return KindUnknown
}

func fail(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}
