// Package errors carries the error type used across the injector
package errors

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"runtime"
)

// Errorf is equivalent to fmt.Errorf
var Errorf = fmt.Errorf

// New is equivalent to errors.New
var New = errors.New

// As is equivalent to errors.As
var As = errors.As

// E builds an error value from its arguments.
// There must be at least one argument or E panics.
// The type of each argument determines its meaning.
// If more than one argument of a given type is presented,
// only the last one is recorded.
//
// The types are:
//
//	errors.Op:
//		The operation being performed
//	errors.Path:
//		The file the operation was working on
//	errors.Format:
//		The container format (file extension) involved
//	errors.Info:
//		Extra info useful to this class of error, think argument
//		name when using InvalidArgument
//	string:
//		Treated as an error message and assigned to the
//		Err field after a call to errors.New
//	errors.Kind:
//		The class of error
//	error:
//		The underlying error that triggered this one
//
// If the error is printed, only those items that have been
// set to non-zero values will appear in the result.
//
// If Kind is not specified or Other, we set it to the Kind of
// the underlying error.
func E(args ...any) error {
	if len(args) == 0 {
		panic("call to errors.E with no arguments")
	}

	e := &Error{}
	for _, arg := range args {
		switch arg := arg.(type) {
		case Kind:
			e.Kind = arg
		case Op:
			e.Op = arg
		case Path:
			e.Path = arg
		case Format:
			e.Format = arg
		case Info:
			e.Info = arg
		case string:
			e.Err = errors.New(arg)
		case *Error:
			copy := *arg
			e.Err = &copy
		case error:
			e.Err = arg
		default:
			_, file, line, _ := runtime.Caller(1)
			log.Printf("errors.E: bad call from %s:%d: %v", file, line, args)
			return Errorf("unknown type %T, value %v in error call", arg, arg)
		}
	}

	prev, ok := e.Err.(*Error)
	if !ok {
		return e
	}

	// The previous error was also one of ours. Suppress duplications
	// so the message won't contain the same information twice
	if prev.Kind == e.Kind {
		prev.Kind = Other
	}
	if prev.Path == e.Path {
		prev.Path = ""
	}
	if prev.Format == e.Format {
		prev.Format = ""
	}
	if prev.Info == e.Info {
		prev.Info = ""
	}
	// if this error has Kind unset or Other, pull up the inner one
	if e.Kind == Other {
		e.Kind = prev.Kind
		prev.Kind = Other
	}

	return e
}

// Select returns an *Error with the given Kind from the error given
func Select(kind Kind, err error) (*Error, bool) {
	e, ok := err.(*Error)
	if !ok {
		return nil, false
	}

	if e.Kind == kind {
		return e, true
	}
	if e.Err != nil {
		return Select(kind, e.Err)
	}

	return nil, false
}

// Is reports whether err is an *Error of the given kind
func Is(kind Kind, err error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	if e.Kind != Other {
		return e.Kind == kind
	}
	if e.Err != nil {
		return Is(kind, e.Err)
	}
	return false
}

// KindOf returns the first non-Other Kind found in err, or Other
func KindOf(err error) Kind {
	e, ok := err.(*Error)
	if !ok {
		return Other
	}
	if e.Kind != Other {
		return e.Kind
	}
	if e.Err != nil {
		return KindOf(e.Err)
	}
	return Other
}

// Op is the operation that was being performed
type Op string

// Path is the filesystem path an operation was working on
type Path string

// Format is the container format involved, as a lower-cased extension
type Format string

// Info is some extra information that can be included with an Error
type Info string

// Error is the type that implements the error interface.
// It contains a number of fields, each of different type.
// An Error value may leave some values unset.
type Error struct {
	Kind   Kind
	Op     Op
	Path   Path
	Format Format
	Info   Info
	Err    error
}

func (e *Error) isZero() bool {
	return e == nil || *e == Error{}
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// pad appends s to the buffer if the buffer already contains data
func pad(b *bytes.Buffer, s string) {
	if b.Len() != 0 {
		b.WriteString(s)
	}
}

func (e *Error) Error() string {
	b := new(bytes.Buffer)

	if e.Op != "" {
		pad(b, ": ")
		b.WriteString(string(e.Op))
	}

	if e.Kind != 0 {
		pad(b, ": ")
		b.WriteString(e.Kind.String())
	}

	var hadPrevious bool
	infoPad := func() {
		if hadPrevious {
			pad(b, ", ")
		} else {
			pad(b, ": ")
		}
		hadPrevious = true
	}

	if e.Path != "" {
		infoPad()
		b.WriteString("Path<")
		b.WriteString(string(e.Path))
		b.WriteString(">")
	}

	if e.Format != "" {
		infoPad()
		b.WriteString("Format<")
		b.WriteString(string(e.Format))
		b.WriteString(">")
	}

	if e.Info != "" {
		infoPad()
		b.WriteString("Info<")
		b.WriteString(string(e.Info))
		b.WriteString(">")
	}

	if e.Err != nil {
		// indent on new line if we're cascading non-empty Error
		if prev, ok := e.Err.(*Error); ok && !prev.isZero() {
			pad(b, Separator)
			b.WriteString(prev.Error())
		} else {
			pad(b, ": ")
			b.WriteString(e.Err.Error())
		}
	}

	if b.Len() == 0 {
		return "no error"
	}

	return b.String()
}

// Message returns the innermost error message, suitable for showing to a
// user without the operation trail
func Message(err error) string {
	e, ok := err.(*Error)
	if !ok {
		return err.Error()
	}
	if e.Err != nil {
		return Message(e.Err)
	}
	if e.Kind != Other {
		return e.Kind.String()
	}
	return e.Error()
}

// Separator is the string used to separate nested errors. By
// default, to make errors easier on the eye, nested errors are
// indented on a new line. A server may instead choose to keep each
// error on a single line by modifying the separator string, perhaps
// to ":: ".
var Separator = ":\n\t"

// Kind defines the kind of error this is
type Kind uint8

// Kinds of errors
//
// Do not reorder this list or remove items;
// New items must be added only to the end
const (
	Other             Kind = iota // Unclassified error
	InvalidArgument               // Invalid argument given to function
	UnsupportedFormat             // No tag writer for the container format
	TagOpen                       // File could not be opened or parsed
	TagWrite                      // Tags could not be encoded into the file
	TagSave                       // Tagged file could not be persisted
	UploadUnknown                 // Upload does not exist
	ToolMissing                   // External tool is not installed
)

func (k Kind) String() string {
	switch k {
	case Other:
		return "other error"
	case InvalidArgument:
		return "invalid argument"
	case UnsupportedFormat:
		return "unsupported format"
	case TagOpen:
		return "failed to open file"
	case TagWrite:
		return "failed to write tags"
	case TagSave:
		return "failed to save file"
	case UploadUnknown:
		return "unknown upload"
	case ToolMissing:
		return "required tool not found"
	}

	return "unknown error kind"
}
