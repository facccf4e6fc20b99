package workspace

import (
	"errors"
	"io/fs"

	perrors "github.com/jmgilman/go/errors"
)

const (
	CodeInvalidPath   perrors.ErrorCode = "INVALID_PATH"
	CodePathEscape    perrors.ErrorCode = "PATH_ESCAPE"
	CodeNotADirectory perrors.ErrorCode = "NOT_A_DIRECTORY"
	CodeReadFailed    perrors.ErrorCode = "READ_FAILED"
	CodeWriteFailed   perrors.ErrorCode = "WRITE_FAILED"
	CodeDeleteFailed  perrors.ErrorCode = "DELETE_FAILED"
	CodeRenameFailed  perrors.ErrorCode = "RENAME_FAILED"
	CodeCreateFailed  perrors.ErrorCode = "CREATE_FAILED"
	CodeScanFailed    perrors.ErrorCode = "SCAN_FAILED"
	CodeLockFailed    perrors.ErrorCode = "LOCK_FAILED"
	CodeRootUnset     perrors.ErrorCode = "ROOT_UNSET"
)

var (
	errStateClosed = perrors.New(CodeLockFailed, "workspace state is closed")
	errRootUnset   = perrors.New(CodeRootUnset, "workspace root is not initialized")
)

// Code returns the workspace error code carried by err, or "" when err has none.
func Code(err error) perrors.ErrorCode {
	if err == nil {
		return ""
	}
	code := perrors.GetCode(err)
	if code == perrors.CodeUnknown {
		return ""
	}
	return code
}

// IsValidation reports whether err was raised before any filesystem side effect.
func IsValidation(err error) bool {
	switch Code(err) {
	case CodeInvalidPath, CodePathEscape, CodeNotADirectory:
		return true
	default:
		return false
	}
}

// IsNotFound reports whether an I/O failure was caused by a missing path.
func IsNotFound(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func wrapIO(err error, code perrors.ErrorCode, message, path string) error {
	return perrors.WrapWithContext(err, code, message, map[string]interface{}{
		"path": path,
	})
}
