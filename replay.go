package dflow

import "context"

// EffectPerformer performs one effect and builds the HostToGuest response
// that would be recorded on success. It must mint a fresh correlation id
// (NewID()) only when actually invoked — a replayed response keeps the id
// it was originally recorded with.
type EffectPerformer func(ctx context.Context) (HostToGuest, error)

// RetrieveOrElse is the replay engine: the single primitive through which
// every HTTP, Random, and Time effect is routed. It runs a three-branch
// decision against the current attempt's log at cursor position
// e.Position, advancing the cursor exactly once per completed call
// regardless of which branch is taken.
//
//  1. log[p] exists and is marked successful → return it unchanged; the
//     effect is not performed again (the "stable replay" branch).
//  2. log[p] exists and is marked failed → perform f; on success overwrite
//     log[p] with the new response (the "retry the failed step" branch).
//  3. p is past the end of the log → perform f; append the new response
//     (the "fresh effect" branch).
//
// On f returning an error, the error is returned to the caller
// uninterpreted with no cursor advance, no append, and no overwrite — a
// host-side failure to even perform the effect aborts the whole attempt
// as a failure without id, it never becomes a log entry.
func RetrieveOrElse(ctx context.Context, e *Execution, f EffectPerformer) (HostToGuest, error) {
	p := e.Position

	if entry, ok := e.Log.get(p); ok {
		if entry.Success {
			e.Position++
			return entry.Message, nil
		}
		msg, err := f(ctx)
		if err != nil {
			return HostToGuest{}, err
		}
		e.Log.replace(p, LogMessage{Created: Now(), Success: true, Message: msg})
		e.Position++
		return msg, nil
	}

	msg, err := f(ctx)
	if err != nil {
		return HostToGuest{}, err
	}
	e.Log = e.Log.append(LogMessage{Created: Now(), Success: true, Message: msg})
	e.Position++
	return msg, nil
}
