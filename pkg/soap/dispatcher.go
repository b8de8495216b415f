package soap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/upnp-media/upnp-go/pkg/log"
	"github.com/upnp-media/upnp-go/pkg/metrics"
	"github.com/upnp-media/upnp-go/pkg/model"
	"github.com/upnp-media/upnp-go/pkg/registry"
)

// DefaultActionTimeout bounds one action handler invocation.
const DefaultActionTimeout = 10 * time.Second

// queryStateVariable is the legacy action answered for every service.
const queryStateVariable = "QueryStateVariable"

// ControlURLResolver maps a control URL path to its service.
type ControlURLResolver interface {
	ResolveControlURL(path string) (*registry.ServiceEntry, error)
}

// Config configures a Dispatcher.
type Config struct {
	// ActionTimeout bounds each handler call. Zero uses DefaultActionTimeout.
	ActionTimeout time.Duration

	// Logger is used for operational logging. Nil disables logging.
	Logger *slog.Logger

	// ProtocolLogger receives request, response and fault events.
	ProtocolLogger log.Logger

	// Metrics records action outcomes. Nil disables metrics.
	Metrics *metrics.Metrics
}

// Response is the outcome of one dispatched request.
type Response struct {
	// Status is the HTTP status: 200 on success, 500 for faults and 404 for
	// unknown control URLs.
	Status int

	// Body is the encoded envelope.
	Body []byte

	// Fault is set when the action failed.
	Fault *Error
}

// Dispatcher decodes action requests, validates their arguments against the
// service description and invokes the action handlers.
type Dispatcher struct {
	resolver ControlURLResolver
	config   Config
	logger   *slog.Logger
	plog     log.Logger
}

// NewDispatcher creates a dispatcher resolving control URLs with resolver.
func NewDispatcher(resolver ControlURLResolver, config Config) *Dispatcher {
	if config.ActionTimeout <= 0 {
		config.ActionTimeout = DefaultActionTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Dispatcher{
		resolver: resolver,
		config:   config,
		logger:   logger,
		plog:     log.OrNoop(config.ProtocolLogger),
	}
}

// Dispatch handles one control request. soapAction is the SOAPACTION header.
func (d *Dispatcher) Dispatch(ctx context.Context, controlURL, soapAction string, body io.Reader) *Response {
	start := time.Now()
	exchange := uuid.NewString()

	entry, err := d.resolver.ResolveControlURL(controlURL)
	if err != nil {
		d.logger.Debug("unknown control URL", "path", controlURL)
		return d.fault(NewError(CodeInvalidAction, "unknown service"), 404, nil, "", exchange, start)
	}
	svc := entry.Service

	serviceType, actionName, err := ParseSOAPAction(soapAction)
	if err != nil {
		return d.fault(NewError(CodeInvalidAction, err.Error()), 500, entry, "", exchange, start)
	}

	req, err := DecodeRequest(body)
	if err != nil {
		d.logger.Debug("undecodable request", "path", controlURL, "error", err)
		return d.fault(NewError(CodeInvalidArgs, "malformed envelope"), 500, entry, actionName, exchange, start)
	}
	d.logRequest(exchange, entry, req)

	if req.Action != actionName {
		return d.fault(Errorf(CodeInvalidAction, "%s does not match SOAPACTION %s", req.Action, actionName), 500, entry, actionName, exchange, start)
	}

	if serviceType == ControlNamespace && actionName == queryStateVariable {
		out, fault := d.queryStateVariable(svc, req)
		return d.reply(ControlNamespace, actionName, out, fault, entry, exchange, start)
	}

	if !model.TypeMatches(serviceType, svc.Type()) {
		return d.fault(Errorf(CodeInvalidAction, "service type %s not offered here", serviceType), 500, entry, actionName, exchange, start)
	}

	out, fault := d.Invoke(ctx, svc, actionName, req.Args)
	return d.reply(svc.Type(), actionName, out, fault, entry, exchange, start)
}

// Invoke decodes and validates args against the action's signature, runs
// the handler under the action timeout and encodes its outputs in declared
// order. The handler is not called when an argument fails validation.
func (d *Dispatcher) Invoke(ctx context.Context, svc *model.Service, actionName string, args []Arg) ([]Arg, *Error) {
	action, err := svc.Action(actionName)
	if err != nil {
		return nil, NewError(CodeInvalidAction, actionName)
	}

	in, fault := decodeArgs(svc, action, args)
	if fault != nil {
		return nil, fault
	}

	out, err := d.call(ctx, action, in)
	if err != nil {
		return nil, d.classify(actionName, err)
	}
	return encodeArgs(svc, action, out)
}

func decodeArgs(svc *model.Service, action *model.Action, args []Arg) (map[string]any, *Error) {
	values := make(map[string]string, len(args))
	for _, a := range args {
		if _, dup := values[a.Name]; !dup {
			values[a.Name] = a.Value
		}
	}

	in := make(map[string]any, len(action.Inputs()))
	for _, arg := range action.Inputs() {
		raw, ok := values[arg.Name]
		if !ok {
			return nil, Errorf(CodeInvalidArgs, "missing argument %s", arg.Name)
		}
		sv, err := svc.StateVariable(arg.RelatedStateVariable)
		if err != nil {
			return nil, Errorf(CodeActionFailed, "argument %s has no state variable", arg.Name)
		}
		v, err := sv.DecodeValue(raw)
		if err != nil {
			return nil, Errorf(CodeInvalidArgs, "argument %s: %v", arg.Name, err)
		}
		in[arg.Name] = v
	}
	return in, nil
}

func encodeArgs(svc *model.Service, action *model.Action, out map[string]any) ([]Arg, *Error) {
	args := make([]Arg, 0, len(action.Outputs()))
	for _, arg := range action.Outputs() {
		sv, err := svc.StateVariable(arg.RelatedStateVariable)
		if err != nil {
			return nil, Errorf(CodeActionFailed, "output %s has no state variable", arg.Name)
		}
		s, err := sv.Type().Encode(out[arg.Name])
		if err != nil {
			return nil, Errorf(CodeActionFailed, "output %s: %v", arg.Name, err)
		}
		args = append(args, Arg{Name: arg.Name, Value: s})
	}
	return args, nil
}

type callResult struct {
	out map[string]any
	err error
}

// call runs the handler in its own goroutine so a stuck handler cannot hold
// the request past the timeout.
func (d *Dispatcher) call(ctx context.Context, action *model.Action, in map[string]any) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, d.config.ActionTimeout)
	defer cancel()

	done := make(chan callResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("action handler panic", "action", action.Name(), "panic", r, "stack", string(debug.Stack()))
				done <- callResult{err: fmt.Errorf("handler panic: %v", r)}
			}
		}()
		out, err := action.Invoke(ctx, in)
		done <- callResult{out: out, err: err}
	}()

	select {
	case res := <-done:
		return res.out, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *Dispatcher) classify(action string, err error) *Error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		d.logger.Warn("action timed out", "action", action, "timeout", d.config.ActionTimeout)
		return NewError(CodeActionFailed, "timeout")
	case errors.Is(err, model.ErrActionNotImplemented):
		return NewError(CodeOptionalActionNotImplemented, action)
	case errors.Is(err, model.ErrValueNotAllowed), errors.Is(err, model.ErrValueOutOfRange):
		return NewError(CodeArgumentValueInvalid, err.Error())
	}
	fault := AsError(err)
	if fault.Code == CodeActionFailed {
		d.logger.Warn("action failed", "action", action, "error", err)
	}
	return fault
}

func (d *Dispatcher) queryStateVariable(svc *model.Service, req *Request) ([]Arg, *Error) {
	name, ok := req.Arg("varName")
	if !ok {
		return nil, NewError(CodeInvalidArgs, "missing argument varName")
	}
	sv, err := svc.StateVariable(name)
	if err != nil {
		return nil, NewError(CodeInvalidVar, name)
	}
	return []Arg{{Name: "return", Value: sv.Encoded()}}, nil
}

func (d *Dispatcher) reply(serviceType, action string, out []Arg, fault *Error, entry *registry.ServiceEntry, exchange string, start time.Time) *Response {
	if fault != nil {
		return d.fault(fault, 500, entry, action, exchange, start)
	}
	body, err := EncodeResponse(serviceType, action, out)
	if err != nil {
		return d.fault(NewError(CodeActionFailed, "encoding response"), 500, entry, action, exchange, start)
	}

	elapsed := time.Since(start)
	d.config.Metrics.SOAPAction(action, 0, elapsed)
	d.logAction(exchange, entry, log.MessageTypeResponse, action, serviceType, argMap(out), 0, elapsed)
	return &Response{Status: 200, Body: body}
}

func (d *Dispatcher) fault(fault *Error, status int, entry *registry.ServiceEntry, action, exchange string, start time.Time) *Response {
	body, err := EncodeFault(fault)
	if err != nil {
		d.logger.Error("encoding fault", "code", fault.Code, "error", err)
	}

	elapsed := time.Since(start)
	d.config.Metrics.SOAPAction(action, int(fault.Code), elapsed)
	d.logger.Debug("action fault", "action", action, "code", int(fault.Code), "description", fault.Description)
	d.logAction(exchange, entry, log.MessageTypeFault, action, "", nil, int(fault.Code), elapsed)
	return &Response{Status: status, Body: body, Fault: fault}
}

func (d *Dispatcher) logRequest(exchange string, entry *registry.ServiceEntry, req *Request) {
	d.logAction(exchange, entry, log.MessageTypeRequest, req.Action, req.ServiceType, argMap(req.Args), 0, 0)
}

func (d *Dispatcher) logAction(exchange string, entry *registry.ServiceEntry, typ log.MessageType, action, serviceType string, args map[string]string, code int, elapsed time.Duration) {
	ev := log.Event{
		Timestamp:  time.Now(),
		ExchangeID: exchange,
		Direction:  log.DirectionIn,
		Protocol:   log.ProtocolSOAP,
		Category:   log.CategoryMessage,
		Action: &log.ActionEvent{
			Type:        typ,
			Name:        action,
			ServiceType: serviceType,
			Args:        args,
			FaultCode:   code,
		},
	}
	if typ != log.MessageTypeRequest {
		ev.Direction = log.DirectionOut
		ev.Action.ProcessingTime = &elapsed
	}
	if entry != nil {
		ev.UDN = entry.Device.UDN()
		ev.ServiceID = entry.Service.ID()
	}
	d.plog.Log(ev)
}

func argMap(args []Arg) map[string]string {
	if len(args) == 0 {
		return nil
	}
	m := make(map[string]string, len(args))
	for _, a := range args {
		m[a.Name] = a.Value
	}
	return m
}
