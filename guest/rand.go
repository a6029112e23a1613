package guest

import (
	"fmt"

	"github.com/arclight/dflow"
)

// Bool draws a random bool from the host's shared RNG.
func Bool(call Dispatch) (bool, error) {
	reply, err := drawRandom(call, dflow.ScalarBool)
	if err != nil {
		return false, err
	}
	return reply.Bool, nil
}

// Int32 draws a random int32 from the host's shared RNG.
func Int32(call Dispatch) (int32, error) {
	reply, err := drawRandom(call, dflow.ScalarI32)
	if err != nil {
		return 0, err
	}
	return reply.I32, nil
}

// Float32 draws a random float32 from the host's shared RNG.
func Float32(call Dispatch) (float32, error) {
	reply, err := drawRandom(call, dflow.ScalarF32)
	if err != nil {
		return 0, err
	}
	return reply.F32, nil
}

func drawRandom(call Dispatch, kind dflow.ScalarKind) (*dflow.Scalar, error) {
	req := dflow.GuestToHost{Kind: dflow.EffectRandom, Random: &dflow.Scalar{Kind: kind}}
	reply, err := call(req)
	if err != nil {
		return nil, err
	}
	if reply.Content.Kind != dflow.ContentValue || reply.Content.Value == nil {
		return nil, fmt.Errorf("guest: expected value content for random draw, got %q", reply.Content.Kind)
	}
	return reply.Content.Value, nil
}
