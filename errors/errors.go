package errors

import (
	"errors"
	"fmt"
)

// Code is a negative status code. The most-significant bits identify the
// band an error belongs to, which decides how callers recover: parse and
// fatal errors abort the whole input, validation and WAT errors abort the
// current module, runtime errors are reported per script directive.
type Code int32

const Success Code = 0

// Parse-terminating errors.
const (
	ErrParseUnexpectedEOF Code = -0x0F + iota
	ErrParseInvalidMagic
	ErrParseInvalidVersion
	ErrParseInvalidName
)

// Fatal errors: an internal invariant was violated.
const (
	ErrFatalUnknownKind Code = -0xFF + iota
	ErrFatalUnknownInstruction
	ErrFatalExpectedEnd
	ErrFatalDuplicateExport
	ErrFatalDuplicateModuleName
	ErrFatalInvalidModule
	ErrFatalInvalidIndex
)

// Validation errors: the module is well formed but semantically rejected.
const (
	ErrValidation Code = -0xFFF + iota
	ErrInvalidFunctionIndex
	ErrInvalidGlobalIndex
	ErrInvalidBranchDepth
	ErrInvalidInitializer
	ErrMultipleReturnValues
	ErrSignatureMismatch
	ErrUnknownModule
	ErrUnknownExport
)

// WAT surface errors raised by the lexer and parser.
const (
	ErrWatInternal Code = -0xFFFFF + iota
	ErrWatExpectedOpen
	ErrWatExpectedClose
	ErrWatExpectedToken
	ErrWatExpectedName
	ErrWatExpectedString
	ErrWatExpectedValue
	ErrWatExpectedNumber
	ErrWatExpectedType
	ErrWatExpectedVar
	ErrWatExpectedValType
	ErrWatExpectedFunc
	ErrWatExpectedOperator
	ErrWatExpectedInteger
	ErrWatExpectedFloat
	ErrWatExpectedResult
	ErrWatExpectedThen
	ErrWatExpectedElse
	ErrWatExpectedEnd
	ErrWatExpectedLocal
	ErrWatExpectedFuncref
	ErrWatExpectedMut
	ErrWatExpectedModule
	ErrWatExpectedElem
	ErrWatExpectedKind
	ErrWatInvalidToken
	ErrWatInvalidNumber
	ErrWatInvalidImportOrder
	ErrWatInvalidAlignment
	ErrWatInvalidName
	ErrWatInvalidVar
	ErrWatInvalidType
	ErrWatInvalidLocal
	ErrWatUnknownType
	ErrWatUnexpectedName
	ErrWatTypeMismatch
	ErrWatLabelMismatch
	ErrWatOutOfRange
	ErrWatBadEscape
	ErrWatDuplicateName
	ErrWatParamAfterResult
)

// Runtime errors raised by the script driver.
const (
	ErrRuntimeInit Code = -0xFFFFFF + iota
	ErrRuntimeTrap
	ErrRuntimeAssertFailure
	ErrRuntimeUnsupported
)

// Band identifies the recovery class of a Code.
type Band int

const (
	BandNone Band = iota
	BandParse
	BandFatal
	BandValidation
	BandWat
	BandRuntime
)

func (b Band) String() string {
	switch b {
	case BandParse:
		return "parse"
	case BandFatal:
		return "fatal"
	case BandValidation:
		return "validation"
	case BandWat:
		return "wat"
	case BandRuntime:
		return "runtime"
	}
	return "none"
}

// Band returns the band a code belongs to. Codes count upward from each
// band's base, so the boundaries sit between the bands rather than at
// their bases.
func (c Code) Band() Band {
	switch {
	case c == Success:
		return BandNone
	case c <= -0x800000:
		return BandRuntime
	case c <= -0x80000:
		return BandWat
	case c <= -0x800:
		return BandValidation
	case c <= -0x80:
		return BandFatal
	default:
		return BandParse
	}
}

var codeNames = map[Code]string{
	ErrParseUnexpectedEOF:       "unexpected end of input",
	ErrParseInvalidMagic:        "invalid magic cookie",
	ErrParseInvalidVersion:      "invalid binary version",
	ErrParseInvalidName:         "invalid name",
	ErrFatalUnknownKind:         "unknown kind",
	ErrFatalUnknownInstruction:  "unknown instruction",
	ErrFatalExpectedEnd:         "expected end instruction",
	ErrFatalDuplicateExport:     "duplicate export",
	ErrFatalDuplicateModuleName: "duplicate module name",
	ErrFatalInvalidModule:       "invalid module",
	ErrFatalInvalidIndex:        "invalid index",
	ErrValidation:               "validation failed",
	ErrInvalidFunctionIndex:     "invalid function index",
	ErrInvalidGlobalIndex:       "invalid global index",
	ErrInvalidBranchDepth:       "invalid branch depth",
	ErrInvalidInitializer:       "invalid initializer",
	ErrMultipleReturnValues:     "multiple return values",
	ErrSignatureMismatch:        "signature mismatch",
	ErrUnknownModule:            "unknown module",
	ErrUnknownExport:            "unknown export",
	ErrWatInternal:              "internal error",
	ErrWatExpectedOpen:          "expected '('",
	ErrWatExpectedClose:         "expected ')'",
	ErrWatExpectedToken:         "expected token",
	ErrWatExpectedName:          "expected name",
	ErrWatExpectedString:        "expected string",
	ErrWatExpectedValue:         "expected value",
	ErrWatExpectedNumber:        "expected number",
	ErrWatExpectedType:          "expected type",
	ErrWatExpectedVar:           "expected index or name",
	ErrWatExpectedValType:       "expected value type",
	ErrWatExpectedFunc:          "expected 'func'",
	ErrWatExpectedOperator:      "expected instruction",
	ErrWatExpectedInteger:       "expected integer",
	ErrWatExpectedFloat:         "expected float",
	ErrWatExpectedResult:        "expected 'result'",
	ErrWatExpectedThen:          "expected 'then'",
	ErrWatExpectedElse:          "expected 'else'",
	ErrWatExpectedEnd:           "expected 'end'",
	ErrWatExpectedLocal:         "expected 'local'",
	ErrWatExpectedFuncref:       "expected element type",
	ErrWatExpectedMut:           "expected 'mut'",
	ErrWatExpectedModule:        "expected 'module'",
	ErrWatExpectedElem:          "expected 'elem'",
	ErrWatExpectedKind:          "expected export kind",
	ErrWatInvalidToken:          "invalid token",
	ErrWatInvalidNumber:         "invalid number",
	ErrWatInvalidImportOrder:    "import after definition",
	ErrWatInvalidAlignment:      "invalid alignment",
	ErrWatInvalidName:           "invalid name",
	ErrWatInvalidVar:            "unknown index or name",
	ErrWatInvalidType:           "invalid type",
	ErrWatInvalidLocal:          "unknown local",
	ErrWatUnknownType:           "unknown type",
	ErrWatUnexpectedName:        "unexpected name",
	ErrWatTypeMismatch:          "inline type mismatch",
	ErrWatLabelMismatch:         "mismatching label",
	ErrWatOutOfRange:            "constant out of range",
	ErrWatBadEscape:             "bad string escape",
	ErrWatDuplicateName:         "duplicate name",
	ErrWatParamAfterResult:      "param after result",
	ErrRuntimeInit:              "initialization failed",
	ErrRuntimeTrap:              "trap",
	ErrRuntimeAssertFailure:     "assertion failed",
	ErrRuntimeUnsupported:       "unsupported directive",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("error %#x", int32(c))
}

// Error is the structured error used throughout the front-end. Line is the
// 1-based source line, or zero when no source position applies.
type Error struct {
	Cause  error
	Detail string
	Code   Code
	Line   int
}

func (e *Error) Error() string {
	s := "[" + e.Code.Band().String() + "] " + e.Code.String()
	if e.Line > 0 {
		s += fmt.Sprintf(" at line %d", e.Line)
	}
	if e.Detail != "" {
		s += ": " + e.Detail
	}
	if e.Cause != nil {
		s += " (caused by: " + e.Cause.Error() + ")"
	}
	return s
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by code so callers can test with errors.Is.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates an error with no source position.
func New(code Code, detail string, args ...any) *Error {
	if len(args) > 0 {
		detail = fmt.Sprintf(detail, args...)
	}
	return &Error{Code: code, Detail: detail}
}

// At creates an error attached to a source line.
func At(code Code, line int, detail string, args ...any) *Error {
	if len(args) > 0 {
		detail = fmt.Sprintf(detail, args...)
	}
	return &Error{Code: code, Line: line, Detail: detail}
}

// Wrap attaches a code to an underlying cause.
func Wrap(code Code, cause error, detail string) *Error {
	return &Error{Code: code, Detail: detail, Cause: cause}
}

// CodeOf extracts the Code from err, or Success when err carries none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Success
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}
