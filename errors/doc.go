// Package errors provides the banded status codes and structured error type
// used by the WAT front-end.
//
// Codes live in five bands keyed by their most-significant bits: parse,
// fatal, validation, WAT surface, and runtime. The band decides recovery:
// only the script driver ever continues past an error, and only for
// assertion directives that expected one.
//
// Errors support the standard errors.Is/As machinery and match by Code:
//
//	if errors.HasCode(err, errors.ErrWatDuplicateName) { ... }
package errors
