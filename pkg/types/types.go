package types

import (
	"errors"
	"fmt"
	"strings"
)

// Reserved workflow items. All reserved items carry the '$' prefix and are
// owned by the engine; applications must not overwrite them directly.
const (
	ItemUniqueID       = "$uniqueid"
	ItemModelVersion   = "$modelversion"
	ItemTaskID         = "$taskid"
	ItemEventID        = "$eventid"
	ItemWorkflowGroup  = "$workflowgroup"
	ItemWorkflowStatus = "$workflowstatus"
	ItemReadAccess     = "$readaccess"
	ItemWriteAccess    = "$writeaccess"
	ItemOwner          = "$owner"
	ItemParticipants   = "$participants"
	ItemLastEventDate  = "$lasteventdate"
	ItemLastEventID    = "$lasteventid"
	ItemCreator        = "$creator"
	ItemCreated        = "$created"
	ItemModified       = "$modified"
	ItemEventLog       = "$eventlog"
	ItemType           = "type"
	ItemFile           = "$file"
	ItemFileCount      = "$file.count"
	ItemFileNames      = "$file.names"

	// ItemActivityIDList queues follow-up event ids for the current step.
	ItemActivityIDList = "$activityidlist"
)

// Deprecated item aliases, still mirrored for one major version.
const (
	ItemProcessIDDeprecated  = "$processid"
	ItemActivityIDDeprecated = "$activityid"
	ItemNameDeprecated       = "txtname"
	ItemOwnerDeprecated      = "namowner"
)

// TypeScheduler marks scheduler configuration documents.
const TypeScheduler = "scheduler"

// TypeWorkitem marks in-flight process instances.
const TypeWorkitem = "workitem"

// ErrorCode identifies an error kind of the engine.
type ErrorCode string

const (
	CodeAccessDenied    ErrorCode = "ACCESS_DENIED"
	CodeModelError      ErrorCode = "MODEL_ERROR"
	CodeUndefinedModel  ErrorCode = "UNDEFINED_MODEL_ENTRY"
	CodeInvalidModel    ErrorCode = "INVALID_MODEL_ENTRY"
	CodeDuplicateEvent  ErrorCode = "DUPLICATE_EVENT"
	CodeCyclicFollowUp  ErrorCode = "CYCLIC_FOLLOWUP"
	CodeProcessingError ErrorCode = "PROCESSING_ERROR"
	CodePluginError     ErrorCode = "PLUGIN_ERROR"
	CodeRuleError       ErrorCode = "RULE_ERROR"
	CodeSchedulerError  ErrorCode = "SCHEDULER_ERROR"
	CodeInvalidValue    ErrorCode = "INVALID_ITEMVALUE"
)

// WorkflowError is the error tuple surfaced by every engine component:
// the failing context (usually a component or plugin name), a stable code,
// a human readable message and optional parameters for localization.
type WorkflowError struct {
	Context string
	Code    ErrorCode
	Message string
	Params  []string
	Cause   error
}

// NewWorkflowError creates an error without a cause.
func NewWorkflowError(context string, code ErrorCode, message string, params ...string) *WorkflowError {
	return &WorkflowError{Context: context, Code: code, Message: message, Params: params}
}

// WrapWorkflowError creates an error wrapping a cause.
func WrapWorkflowError(context string, code ErrorCode, message string, cause error, params ...string) *WorkflowError {
	return &WorkflowError{Context: context, Code: code, Message: message, Params: params, Cause: cause}
}

// Error implements the error interface.
func (e *WorkflowError) Error() string {
	var sb strings.Builder
	if e.Context != "" {
		sb.WriteString(e.Context)
		sb.WriteString(": ")
	}
	sb.WriteString(string(e.Code))
	if e.Message != "" {
		sb.WriteString(" - ")
		sb.WriteString(e.Message)
	}
	if len(e.Params) > 0 {
		fmt.Fprintf(&sb, " %v", e.Params)
	}
	if e.Cause != nil {
		fmt.Fprintf(&sb, ": %v", e.Cause)
	}
	return sb.String()
}

// Unwrap exposes the cause for errors.Is / errors.As chains.
func (e *WorkflowError) Unwrap() error {
	return e.Cause
}

// Is matches on the error code so callers can test kinds without
// comparing instances.
func (e *WorkflowError) Is(target error) bool {
	var we *WorkflowError
	if errors.As(target, &we) {
		return we.Code == e.Code && (we.Context == "" || we.Context == e.Context)
	}
	return false
}

// IsCode reports whether err carries the given engine error code.
func IsCode(err error, code ErrorCode) bool {
	var we *WorkflowError
	if errors.As(err, &we) {
		return we.Code == code
	}
	return false
}
