package emu

// CallFrame records one CAL for the matching RET.
type CallFrame struct {
	ReturnAddr uint32     // Address after the CAL
	Mask       uint32     // Active mask at the CAL
	Saved      *SyncStack // Caller's sync stack, restored by RET
}

// ReturnStack holds the pending subroutine calls of one warp. The callee
// runs on a fresh SyncStack so that its divergence never mixes with the
// caller's entries.
type ReturnStack struct {
	frames []CallFrame
}

// NewReturnStack creates an empty return stack.
func NewReturnStack() *ReturnStack {
	return &ReturnStack{}
}

// Len returns the call depth.
func (r *ReturnStack) Len() int {
	return len(r.frames)
}

// Push records a call.
func (r *ReturnStack) Push(f CallFrame) {
	r.frames = append(r.frames, f)
}

// Pop removes the most recent call.
func (r *ReturnStack) Pop() (CallFrame, bool) {
	if len(r.frames) == 0 {
		return CallFrame{}, false
	}

	f := r.frames[len(r.frames)-1]
	r.frames = r.frames[:len(r.frames)-1]
	return f, true
}

// exitLane removes an exited lane from every saved caller state.
func (r *ReturnStack) exitLane(lane int) {
	for i := range r.frames {
		r.frames[i].Mask &^= 1 << uint(lane)
		_ = r.frames[i].Saved.Mask(lane, MaskExit)
	}
}
