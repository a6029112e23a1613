package guest

import (
	"fmt"
	"time"

	"github.com/arclight/dflow"
)

// Now returns the host's replayed-or-performed wall-clock reading,
// reconstructed from the ABI's seconds+nanoseconds wire shape.
func Now(call Dispatch) (time.Time, error) {
	reply, err := call(dflow.GuestToHost{Kind: dflow.EffectTime})
	if err != nil {
		return time.Time{}, err
	}
	if reply.Content.Kind != dflow.ContentTime || reply.Content.Time == nil {
		return time.Time{}, fmt.Errorf("guest: expected time content, got %q", reply.Content.Kind)
	}
	wc := reply.Content.Time
	return time.Unix(int64(wc.Sec), int64(wc.Nsec)), nil
}
