package soap

import (
	"errors"
	"fmt"
)

// Code is a UPnP control error code.
type Code int

const (
	// CodeInvalidAction indicates no action by that name at this service.
	CodeInvalidAction Code = 401

	// CodeInvalidArgs indicates missing or malformed arguments.
	CodeInvalidArgs Code = 402

	// CodeOutOfSync indicates the request is out of sync.
	CodeOutOfSync Code = 403

	// CodeInvalidVar indicates an unknown state variable in a query.
	CodeInvalidVar Code = 404

	// CodeActionFailed indicates the action failed during execution.
	CodeActionFailed Code = 501

	// CodeArgumentValueInvalid indicates an argument value is invalid.
	CodeArgumentValueInvalid Code = 600

	// CodeArgumentValueOutOfRange indicates an argument value is out of range.
	CodeArgumentValueOutOfRange Code = 601

	// CodeOptionalActionNotImplemented indicates an unimplemented optional action.
	CodeOptionalActionNotImplemented Code = 602

	// CodeOutOfMemory indicates insufficient memory.
	CodeOutOfMemory Code = 603

	// CodeHumanInterventionRequired indicates the action needs a person.
	CodeHumanInterventionRequired Code = 604

	// CodeStringArgumentTooLong indicates a string argument is too long.
	CodeStringArgumentTooLong Code = 605

	// CodeNotAuthorized indicates the action is not authorized.
	CodeNotAuthorized Code = 606

	// CodeNoSuchObject is a ContentDirectory/ConnectionManager code: unknown
	// object, or incompatible protocol info for ConnectionManager.
	CodeNoSuchObject Code = 701

	// CodeInvalidCurrentTag is a ContentDirectory code, reused by
	// ConnectionManager for incompatible directions.
	CodeInvalidCurrentTag Code = 702

	// CodeInvalidNewTag is a ContentDirectory code.
	CodeInvalidNewTag Code = 703

	// CodeRequiredTag is a ContentDirectory code.
	CodeRequiredTag Code = 704

	// CodeReadOnlyTag is a ContentDirectory code, reused by
	// ConnectionManager for insufficient network resources.
	CodeReadOnlyTag Code = 705

	// CodeParameterMismatch is a ContentDirectory code, reused by
	// ConnectionManager for an invalid connection reference.
	CodeParameterMismatch Code = 706

	// CodeInvalidSearchCriteria indicates unsupported or invalid search criteria.
	CodeInvalidSearchCriteria Code = 708

	// CodeInvalidSortCriteria indicates unsupported or invalid sort criteria.
	CodeInvalidSortCriteria Code = 709

	// CodeNoSuchContainer indicates an unknown container.
	CodeNoSuchContainer Code = 710

	// CodeRestrictedObject indicates the object is restricted.
	CodeRestrictedObject Code = 711

	// CodeBadMetadata indicates malformed metadata.
	CodeBadMetadata Code = 712

	// CodeRestrictedParentObject indicates the parent object is restricted.
	CodeRestrictedParentObject Code = 713

	// CodeNoSuchSourceResource indicates an unknown source resource.
	CodeNoSuchSourceResource Code = 714

	// CodeSourceResourceAccessDenied indicates the source resource is locked.
	CodeSourceResourceAccessDenied Code = 715

	// CodeTransferBusy indicates another transfer is in progress.
	CodeTransferBusy Code = 716

	// CodeNoSuchFileTransfer indicates an unknown transfer id.
	CodeNoSuchFileTransfer Code = 717

	// CodeNoSuchDestinationResource indicates an unknown destination.
	CodeNoSuchDestinationResource Code = 718

	// CodeDestinationResourceAccessDenied indicates the destination is locked.
	CodeDestinationResourceAccessDenied Code = 719

	// CodeCannotProcess indicates the request cannot be processed.
	CodeCannotProcess Code = 720
)

// String returns the standard description for the code.
func (c Code) String() string {
	switch c {
	case CodeInvalidAction:
		return "Invalid Action"
	case CodeInvalidArgs:
		return "Invalid Args"
	case CodeOutOfSync:
		return "Out of Sync"
	case CodeInvalidVar:
		return "Invalid Var"
	case CodeActionFailed:
		return "Action Failed"
	case CodeArgumentValueInvalid:
		return "Argument Value Invalid"
	case CodeArgumentValueOutOfRange:
		return "Argument Value Out of Range"
	case CodeOptionalActionNotImplemented:
		return "Optional Action Not Implemented"
	case CodeOutOfMemory:
		return "Out of Memory"
	case CodeHumanInterventionRequired:
		return "Human Intervention Required"
	case CodeStringArgumentTooLong:
		return "String Argument Too Long"
	case CodeNotAuthorized:
		return "Action Not Authorized"
	case CodeNoSuchObject:
		return "No such object"
	case CodeInvalidCurrentTag:
		return "Invalid CurrentTagValue"
	case CodeInvalidNewTag:
		return "Invalid NewTagValue"
	case CodeRequiredTag:
		return "Required tag"
	case CodeReadOnlyTag:
		return "Read only tag"
	case CodeParameterMismatch:
		return "Parameter Mismatch"
	case CodeInvalidSearchCriteria:
		return "Unsupported or invalid search criteria"
	case CodeInvalidSortCriteria:
		return "Unsupported or invalid sort criteria"
	case CodeNoSuchContainer:
		return "No such container"
	case CodeRestrictedObject:
		return "Restricted object"
	case CodeBadMetadata:
		return "Bad metadata"
	case CodeRestrictedParentObject:
		return "Restricted parent object"
	case CodeNoSuchSourceResource:
		return "No such source resource"
	case CodeSourceResourceAccessDenied:
		return "Source resource access denied"
	case CodeTransferBusy:
		return "Transfer busy"
	case CodeNoSuchFileTransfer:
		return "No such file transfer"
	case CodeNoSuchDestinationResource:
		return "No such destination resource"
	case CodeDestinationResourceAccessDenied:
		return "Destination resource access denied"
	case CodeCannotProcess:
		return "Cannot process the request"
	default:
		return "Unknown Error"
	}
}

// Error is a UPnP error returned to the control point as a SOAP fault.
type Error struct {
	Code        Code
	Description string
}

// NewError creates an error with the code's standard description, or with
// detail appended when given.
func NewError(code Code, detail string) *Error {
	desc := code.String()
	if detail != "" {
		desc += ": " + detail
	}
	return &Error{Code: code, Description: desc}
}

// Errorf creates an error with a formatted detail.
func Errorf(code Code, format string, args ...any) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

func (e *Error) Error() string {
	return fmt.Sprintf("upnp error %d: %s", e.Code, e.Description)
}

// AsError returns err as a *Error. Errors that carry no UPnP code become
// 501 Action Failed.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	return NewError(CodeActionFailed, err.Error())
}
