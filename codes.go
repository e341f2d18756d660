package gitwire

import "github.com/jmgilman/go/errors"

// Configuration file errors.
const (
	// CodeConfigOpen indicates .gitwire.toml exists but could not be read.
	CodeConfigOpen errors.ErrorCode = "CONFIG_OPEN_FAILED"

	// CodeConfigParse indicates .gitwire.toml is not valid TOML or has values of the wrong type.
	CodeConfigParse errors.ErrorCode = "CONFIG_PARSE_FAILED"

	// CodeConfigShape indicates a missing section, a missing required field or an unknown method.
	CodeConfigShape errors.ErrorCode = "CONFIG_INVALID_SHAPE"

	// CodeConfigNameNotUnique indicates two entries share the same name.
	CodeConfigNameNotUnique errors.ErrorCode = "CONFIG_NAME_NOT_UNIQUE"

	// CodeConfigWrite indicates .gitwire.toml could not be written.
	CodeConfigWrite errors.ErrorCode = "CONFIG_WRITE_FAILED"

	// CodeRootNotFound indicates no enclosing git repository was found.
	CodeRootNotFound errors.ErrorCode = "REPOSITORY_ROOT_NOT_FOUND"
)

// Path errors.
const (
	// CodePathUnsound indicates a source or destination contains ".", ".." or ".git".
	CodePathUnsound errors.ErrorCode = "PATH_UNSOUND"

	// CodeDestinationEscape indicates a destination resolves outside the project root.
	CodeDestinationEscape errors.ErrorCode = "DESTINATION_ESCAPE"

	// CodeTempDir indicates a temporary directory could not be created.
	CodeTempDir errors.ErrorCode = "TEMP_DIR_FAILED"
)

// Fetch errors. The invocation codes mean git could not be started at all, the
// rejected codes mean git ran and exited non-zero.
const (
	CodeCloneInvocation    errors.ErrorCode = "CLONE_INVOCATION_FAILED"
	CodeCloneRejected      errors.ErrorCode = "CLONE_REJECTED"
	CodeCheckoutInvocation errors.ErrorCode = "CHECKOUT_INVOCATION_FAILED"
	CodeCheckoutRejected   errors.ErrorCode = "CHECKOUT_REJECTED"
	CodeFetchInvocation    errors.ErrorCode = "FETCH_INVOCATION_FAILED"
	CodeFetchRejected      errors.ErrorCode = "FETCH_REJECTED"

	// CodeRefList indicates the remote's refs could not be listed.
	CodeRefList errors.ErrorCode = "REF_LIST_FAILED"

	// CodeRefPattern indicates a revision could not be turned into a ref pattern.
	CodeRefPattern errors.ErrorCode = "REF_PATTERN_FAILED"
)

// Orchestration errors.
const (
	// CodeNothingToOperate indicates the resolved entry list is empty.
	CodeNothingToOperate errors.ErrorCode = "NOTHING_TO_OPERATE"

	// CodePlacement indicates a destination could not be cleared or filled.
	CodePlacement errors.ErrorCode = "PLACEMENT_FAILED"

	// CodeCompareFailed indicates a tree comparison could not run.
	CodeCompareFailed errors.ErrorCode = "COMPARE_FAILED"

	// CodeWorkerPanic indicates a worker panicked while processing an entry.
	CodeWorkerPanic errors.ErrorCode = "WORKER_PANIC"
)

// Cache errors.
const (
	CodeCacheIO  errors.ErrorCode = "CACHE_IO_FAILED"
	CodeLock     errors.ErrorCode = "LOCK_FAILED"
	CodeMetadata errors.ErrorCode = "METADATA_FAILED"
)
