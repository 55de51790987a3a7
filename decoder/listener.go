package decoder

import "github.com/justapithecus/chunkwire/types"

// Listener receives decoder notifications. Calls are serialized and never
// made while the decoder's lock is held, so a listener may call back into
// the decoder.
type Listener interface {
	OnActive()
	OnIdle()
	OnRedundantChunk(p *types.Packet)
	OnData(msg *types.Message)
	OnError(err error)
}

// ListenerFuncs adapts optional functions to Listener. Nil fields are
// skipped.
type ListenerFuncs struct {
	Active         func()
	Idle           func()
	RedundantChunk func(p *types.Packet)
	Data           func(msg *types.Message)
	Error          func(err error)
}

// OnActive implements Listener.
func (f ListenerFuncs) OnActive() {
	if f.Active != nil {
		f.Active()
	}
}

// OnIdle implements Listener.
func (f ListenerFuncs) OnIdle() {
	if f.Idle != nil {
		f.Idle()
	}
}

// OnRedundantChunk implements Listener.
func (f ListenerFuncs) OnRedundantChunk(p *types.Packet) {
	if f.RedundantChunk != nil {
		f.RedundantChunk(p)
	}
}

// OnData implements Listener.
func (f ListenerFuncs) OnData(msg *types.Message) {
	if f.Data != nil {
		f.Data(msg)
	}
}

// OnError implements Listener.
func (f ListenerFuncs) OnError(err error) {
	if f.Error != nil {
		f.Error(err)
	}
}

// Listeners fans each notification out to every listener in order.
type Listeners []Listener

// OnActive implements Listener.
func (ls Listeners) OnActive() {
	for _, l := range ls {
		l.OnActive()
	}
}

// OnIdle implements Listener.
func (ls Listeners) OnIdle() {
	for _, l := range ls {
		l.OnIdle()
	}
}

// OnRedundantChunk implements Listener.
func (ls Listeners) OnRedundantChunk(p *types.Packet) {
	for _, l := range ls {
		l.OnRedundantChunk(p)
	}
}

// OnData implements Listener.
func (ls Listeners) OnData(msg *types.Message) {
	for _, l := range ls {
		l.OnData(msg)
	}
}

// OnError implements Listener.
func (ls Listeners) OnError(err error) {
	for _, l := range ls {
		l.OnError(err)
	}
}

// notification is one queued listener call.
type notification struct {
	kind   types.EventKind
	packet *types.Packet
	msg    *types.Message
	err    error
}

func (n notification) deliver(l Listener) {
	switch n.kind {
	case types.EventActive:
		l.OnActive()
	case types.EventIdle:
		l.OnIdle()
	case types.EventRedundantChunk:
		l.OnRedundantChunk(n.packet)
	case types.EventData:
		l.OnData(n.msg)
	case types.EventError:
		l.OnError(n.err)
	}
}
