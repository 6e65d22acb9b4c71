package errors

import (
	"context"
	"encoding/json"
	"io/fs"
	"net"
	"os"
	"syscall"
)

// Categorize infers the category of any error.
//
// An explicit category on a DevcrewError wins. Otherwise the error chain is
// inspected for well-known standard library conditions; anything left over
// is a system error.
func Categorize(err error) Category {
	if err == nil {
		return ""
	}
	if c := explicitCategory(err); c != "" {
		return c
	}

	switch {
	case Is(err, fs.ErrPermission):
		return CategoryPermission
	case Is(err, fs.ErrNotExist), Is(err, fs.ErrExist), Is(err, fs.ErrClosed):
		return CategoryFile
	case Is(err, ErrInvalidInput):
		return CategoryValidation
	case Is(err, context.DeadlineExceeded), Is(err, ErrTimeout):
		return CategoryResource
	case Is(err, syscall.ENOSPC), Is(err, syscall.ENOMEM), Is(err, syscall.EMFILE):
		return CategoryResource
	}

	var netErr net.Error
	if As(err, &netErr) {
		return CategoryNetwork
	}

	var pathErr *os.PathError
	if As(err, &pathErr) {
		return CategoryFile
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if As(err, &syntaxErr) || As(err, &typeErr) {
		return CategoryValidation
	}

	return CategorySystem
}

// Classify returns the severity and category of an error in one call.
func Classify(err error) (Severity, Category) {
	return GetSeverity(err), Categorize(err)
}

// PathOf extracts the file path from an *os.PathError in the chain, if any.
func PathOf(err error) (string, bool) {
	var pathErr *fs.PathError
	if As(err, &pathErr) {
		return pathErr.Path, true
	}
	return "", false
}
