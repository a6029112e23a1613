package dflow

import (
	"context"
	"fmt"
	"log/slog"
)

// HTTPPerformer performs an outbound HTTP effect. Concrete implementations
// live in effect/httpfx; kept as an interface here so the root package
// never imports net/http directly — only the ABI mapping a transport must
// produce is fixed, the client behind it is swappable.
type HTTPPerformer interface {
	Perform(ctx context.Context, req Request) (*Response, *Error)
}

// Handlers bundles the effect performers a Runner dispatches
// GuestToHost requests to. HTTP is the only one requiring injection;
// Random and Time are built from State and the clock respectively.
type Handlers struct {
	HTTP   HTTPPerformer
	Logger *slog.Logger

	// Audit, if set, is notified of every logged effect outcome (not log
	// effects, which never enter the log). Purely observational — see
	// AuditSink in runner.go.
	Audit AuditSink

	// Tracer, if set, gets one effect span per dispatch, ended with the
	// replayed/performed distinction.
	Tracer Tracer
}

// Dispatch routes one GuestToHost request to the matching effect handler
// and returns the HostToGuest response the guest should receive. state is
// the workflow instance (for its RNG and ID); exec is the current attempt
// (for its log and cursor). Log effects bypass RetrieveOrElse entirely:
// no log entry is appended and the cursor never moves for them.
func (h *Handlers) Dispatch(ctx context.Context, state *State, exec *Execution, req GuestToHost) (HostToGuest, error) {
	var span EffectSpan
	if h.Tracer != nil {
		ctx, span = h.Tracer.StartEffect(ctx, req.Kind, exec.Position)
	}
	msg, replayed, err := h.dispatch(ctx, state, exec, req)
	if span != nil {
		span.End(replayed, err)
	}
	return msg, err
}

func (h *Handlers) dispatch(ctx context.Context, state *State, exec *Execution, req GuestToHost) (HostToGuest, bool, error) {
	switch req.Kind {
	case EffectInput:
		return HostToGuest{}, false, ErrInputUnsupported

	case EffectRandom:
		return h.routed(ctx, state, exec, func(ctx context.Context) (HostToGuest, error) {
			return h.performRandom(state, req.Random)
		})

	case EffectTime:
		return h.routed(ctx, state, exec, func(ctx context.Context) (HostToGuest, error) {
			return h.performTime()
		})

	case EffectHTTPRequest:
		return h.routed(ctx, state, exec, func(ctx context.Context) (HostToGuest, error) {
			return h.performHTTP(ctx, req.HTTP)
		})

	case EffectLog:
		h.performLog(state, req.Log)
		return HostToGuest{ID: NewID(), Content: Content{Kind: ContentUnit}}, false, nil

	default:
		return HostToGuest{}, false, &ErrProtocolViolation{Detail: fmt.Sprintf("unrecognized effect kind %q", req.Kind)}
	}
}

// routed runs f through RetrieveOrElse, reports the resulting log entry
// to the audit sink if one is configured, and returns whether the
// response was replayed from the log rather than freshly performed.
func (h *Handlers) routed(ctx context.Context, state *State, exec *Execution, f EffectPerformer) (HostToGuest, bool, error) {
	position := exec.Position
	replayed := false
	if entry, ok := exec.Log.get(position); ok && entry.Success {
		replayed = true
	}

	msg, err := RetrieveOrElse(ctx, exec, f)
	if err != nil {
		return HostToGuest{}, false, err
	}

	if h.Audit != nil {
		if entry, ok := exec.Log.get(position); ok {
			h.Audit.RecordEffect(ctx, state, exec, position, entry)
		}
	}
	return msg, replayed, nil
}

func (h *Handlers) performRandom(state *State, scalar *Scalar) (HostToGuest, error) {
	if scalar == nil {
		return HostToGuest{}, &ErrProtocolViolation{Detail: "random effect missing scalar descriptor"}
	}
	var v Scalar
	switch scalar.Kind {
	case ScalarBool:
		v = Scalar{Kind: ScalarBool, Bool: state.RNG.Bool()}
	case ScalarI32:
		v = Scalar{Kind: ScalarI32, I32: state.RNG.Int32()}
	case ScalarF32:
		v = Scalar{Kind: ScalarF32, F32: state.RNG.Float32()}
	case ScalarString:
		return HostToGuest{}, ErrRandomStringUnsupported
	default:
		return HostToGuest{}, &ErrProtocolViolation{Detail: fmt.Sprintf("unrecognized scalar kind %q", scalar.Kind)}
	}
	return HostToGuest{ID: NewID(), Content: Content{Kind: ContentValue, Value: &v}}, nil
}

func (h *Handlers) performTime() (HostToGuest, error) {
	now := Now()
	wc := WallClock{Sec: uint64(now.Unix()), Nsec: uint32(now.Nanosecond())}
	return HostToGuest{ID: NewID(), Content: Content{Kind: ContentTime, Time: &wc}}, nil
}

func (h *Handlers) performHTTP(ctx context.Context, req *Request) (HostToGuest, error) {
	if req == nil {
		return HostToGuest{}, &ErrProtocolViolation{Detail: "http_request effect missing request body"}
	}
	if h.HTTP == nil {
		return HostToGuest{}, &ErrProtocolViolation{Detail: "no HTTP performer configured"}
	}
	resp, errResp := h.HTTP.Perform(ctx, *req)
	result := &HTTPResult{Response: resp, Error: errResp}
	return HostToGuest{ID: NewID(), Content: Content{Kind: ContentHTTPResponse, HTTP: result}}, nil
}

// performLog writes the guest's log message through the host logger,
// tagged with the owning workflow's id, and never touches the execution
// log.
func (h *Handlers) performLog(state *State, msg *LogRequest) {
	if msg == nil || h.Logger == nil {
		return
	}
	args := []any{"workflow_id", state.ID}
	switch msg.Level {
	case LevelTrace, LevelDebug:
		h.Logger.Debug(msg.Message, args...)
	case LevelWarn:
		h.Logger.Warn(msg.Message, args...)
	case LevelError:
		h.Logger.Error(msg.Message, args...)
	default:
		h.Logger.Info(msg.Message, args...)
	}
}
