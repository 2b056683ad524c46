package crawler

import (
	"errors"
	"fmt"
)

// Kind classifies failures so callers can choose between skipping, retrying
// and aborting.
type Kind int

// Error kinds.
const (
	KindUnknown Kind = iota
	KindConfig
	KindNotFound
	KindExtraction
	KindUnsupported
	KindCrawl
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindNotFound:
		return "not_found"
	case KindExtraction:
		return "extraction"
	case KindUnsupported:
		return "unsupported"
	case KindCrawl:
		return "crawl"
	default:
		return "unknown"
	}
}

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrConfig      = &Error{Kind: KindConfig}
	ErrNotFound    = &Error{Kind: KindNotFound}
	ErrExtraction  = &Error{Kind: KindExtraction}
	ErrUnsupported = &Error{Kind: KindUnsupported}
	ErrCrawl       = &Error{Kind: KindCrawl}
)

// Error carries a Kind along with the operation and path that failed.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

// NewError builds an *Error.
func NewError(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Path != "" {
		msg = fmt.Sprintf("%s %q", msg, e.Path)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinels by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Path == "" && t.Err == nil && t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
