// Package soap implements UPnP control: SOAP 1.1 action requests, responses
// and UPnPError faults, and the dispatcher that routes them to service
// action handlers.
//
// # Dispatch
//
// A request is resolved by control URL, then checked against the SOAPACTION
// header and the action's declared input arguments. Each input is decoded
// with the data type of its related state variable and validated against
// that variable's allowed values and range before the handler runs, so
// handlers only ever see typed, valid inputs. Outputs are encoded in the
// order the action declares them.
//
// # Faults
//
//	401  unknown action, or SOAPACTION not matching the body
//	402  missing, malformed or out-of-constraint argument
//	404  unknown variable in QueryStateVariable
//	501  handler error, panic or timeout
//	602  action declared but not implemented
//
// Handlers return *Error to send a specific code such as 701 No such object.
package soap
