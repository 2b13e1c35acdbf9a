// Package pulsetest provides an in-memory pulse.Server. Like the native
// implementation it never runs callbacks inline: every completion is posted to
// the context's Mainloop.
package pulsetest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/AJMerr/gopamix/internal/pulse"
)

// Call records one request issued against the fake.
type Call struct {
	Op    string
	Index uint32
	Arg   interface{}
}

func (c Call) String() string { return fmt.Sprintf("%s(%d, %v)", c.Op, c.Index, c.Arg) }

type Server struct {
	mu sync.Mutex

	Info          pulse.ServerInfo
	Sinks         map[uint32]pulse.Device
	Sources       map[uint32]pulse.Device
	SinkInputs    map[uint32]pulse.Stream
	SourceOutputs map[uint32]pulse.Stream
	Cards         map[uint32]pulse.Card
	Clients       map[uint32]pulse.ClientInfo

	// ContextErr makes NewContext fail.
	ContextErr error
	// ConnectErr makes Context.Connect reject the request.
	ConnectErr error
	// FailConnect drives the context to Failed instead of Ready.
	FailConnect bool
	// Hang keeps the context in Connecting forever.
	Hang bool
	// PeakErr makes OpenPeak fail for the given source index.
	PeakErr map[uint32]error
	// PeakReject lets OpenPeak hand out a stream for the given source index
	// and kills it once the loop runs, the way a server rejects a record
	// stream after the request was sent.
	PeakReject map[uint32]error
	// MutationErr is returned to every mutation callback.
	MutationErr error

	calls []Call
	peaks []*Peak
	ctxs  []*Context
}

func NewServer() *Server {
	return &Server{
		Info:          pulse.ServerInfo{PackageName: "pulsetest", PackageVersion: "0"},
		Sinks:         map[uint32]pulse.Device{},
		Sources:       map[uint32]pulse.Device{},
		SinkInputs:    map[uint32]pulse.Stream{},
		SourceOutputs: map[uint32]pulse.Stream{},
		Cards:         map[uint32]pulse.Card{},
		Clients:       map[uint32]pulse.ClientInfo{},
		PeakErr:       map[uint32]error{},
		PeakReject:    map[uint32]error{},
	}
}

func (s *Server) NewContext(loop *pulse.Mainloop, props pulse.Proplist) (pulse.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ContextErr != nil {
		return nil, s.ContextErr
	}
	c := &Context{srv: s, loop: loop, Props: props.Clone()}
	s.ctxs = append(s.ctxs, c)
	return c, nil
}

// Update runs fn with the server state locked, for changes made while an
// engine is running.
func (s *Server) Update(fn func(s *Server)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

// Calls returns every request recorded so far.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallsOf returns the recorded requests named op.
func (s *Server) CallsOf(op string) []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Peaks returns every peak stream ever opened.
func (s *Server) Peaks() []*Peak {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Peak, len(s.peaks))
	copy(out, s.peaks)
	return out
}

// Context returns the most recently created context.
func (s *Server) Context() *Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ctxs) == 0 {
		return nil
	}
	return s.ctxs[len(s.ctxs)-1]
}

func (s *Server) record(op string, index uint32, arg interface{}) {
	s.mu.Lock()
	s.calls = append(s.calls, Call{Op: op, Index: index, Arg: arg})
	s.mu.Unlock()
}

// Context is the fake connection object.
type Context struct {
	srv   *Server
	loop  *pulse.Mainloop
	Props pulse.Proplist

	state   pulse.State
	stateCb func()
	subCb   func(pulse.Event)
}

func (c *Context) State() pulse.State { return c.state }

func (c *Context) SetStateCallback(cb func()) { c.stateCb = cb }

func (c *Context) SetSubscribeCallback(cb func(pulse.Event)) { c.subCb = cb }

func (c *Context) setState(st pulse.State) {
	c.state = st
	if st.Terminal() {
		c.srv.mu.Lock()
		for _, p := range c.srv.peaks {
			p.alive = false
		}
		c.srv.mu.Unlock()
	}
	if c.stateCb != nil {
		c.stateCb()
	}
}

func (c *Context) Connect(server string) error {
	c.srv.record("connect", 0, server)
	c.srv.mu.Lock()
	rejectErr, fail, hang := c.srv.ConnectErr, c.srv.FailConnect, c.srv.Hang
	c.srv.mu.Unlock()
	if rejectErr != nil {
		return rejectErr
	}
	c.setState(pulse.StateConnecting)
	if hang {
		return nil
	}
	c.loop.Post(func() {
		if fail {
			c.setState(pulse.StateFailed)
			return
		}
		c.setState(pulse.StateReady)
	})
	return nil
}

func (c *Context) Disconnect() {
	c.srv.record("disconnect", 0, nil)
	c.setState(pulse.StateTerminated)
}

// Fail posts a connection loss, as the native side does when the socket closes.
func (c *Context) Fail() {
	c.loop.Post(func() { c.setState(pulse.StateFailed) })
}

// Emit posts a subscription event.
func (c *Context) Emit(ev pulse.Event) {
	c.loop.Post(func() {
		if c.subCb != nil {
			c.subCb(ev)
		}
	})
}

func (c *Context) ready() error {
	if c.state != pulse.StateReady {
		return pulse.ErrNotReady
	}
	return nil
}

func (c *Context) Subscribe(mask pulse.Mask, cb func(error)) {
	c.srv.record("subscribe", 0, mask)
	err := c.ready()
	c.loop.Post(func() { cb(err) })
}

func (c *Context) ServerInfo(cb func(pulse.ServerInfo, error)) {
	c.srv.record("server-info", 0, nil)
	err := c.ready()
	c.srv.mu.Lock()
	info := c.srv.Info
	c.srv.mu.Unlock()
	c.loop.Post(func() { cb(info, err) })
}

func lookup[T any](c *Context, op string, m map[uint32]T, index uint32, cb func(T, error)) {
	c.srv.record(op, index, nil)
	var zero T
	if err := c.ready(); err != nil {
		c.loop.Post(func() { cb(zero, err) })
		return
	}
	c.srv.mu.Lock()
	v, ok := m[index]
	c.srv.mu.Unlock()
	if !ok {
		c.loop.Post(func() { cb(zero, pulse.ErrNoEntity) })
		return
	}
	c.loop.Post(func() { cb(v, nil) })
}

func list[T any](c *Context, op string, m map[uint32]T, cb func([]T, error)) {
	c.srv.record(op, 0, nil)
	if err := c.ready(); err != nil {
		c.loop.Post(func() { cb(nil, err) })
		return
	}
	c.srv.mu.Lock()
	out := make([]T, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	c.srv.mu.Unlock()
	c.loop.Post(func() { cb(out, nil) })
}

func (c *Context) SinkInfo(index uint32, cb func(pulse.Device, error)) {
	lookup(c, "sink-info", c.srv.Sinks, index, cb)
}

func (c *Context) SourceInfo(index uint32, cb func(pulse.Device, error)) {
	lookup(c, "source-info", c.srv.Sources, index, cb)
}

func (c *Context) SinkInputInfo(index uint32, cb func(pulse.Stream, error)) {
	lookup(c, "sink-input-info", c.srv.SinkInputs, index, cb)
}

func (c *Context) SourceOutputInfo(index uint32, cb func(pulse.Stream, error)) {
	lookup(c, "source-output-info", c.srv.SourceOutputs, index, cb)
}

func (c *Context) CardInfo(index uint32, cb func(pulse.Card, error)) {
	lookup(c, "card-info", c.srv.Cards, index, cb)
}

func (c *Context) ClientInfo(index uint32, cb func(pulse.ClientInfo, error)) {
	lookup(c, "client-info", c.srv.Clients, index, cb)
}

func (c *Context) SinkInfoList(cb func([]pulse.Device, error)) {
	list(c, "sink-list", c.srv.Sinks, cb)
}

func (c *Context) SourceInfoList(cb func([]pulse.Device, error)) {
	list(c, "source-list", c.srv.Sources, cb)
}

func (c *Context) SinkInputInfoList(cb func([]pulse.Stream, error)) {
	list(c, "sink-input-list", c.srv.SinkInputs, cb)
}

func (c *Context) SourceOutputInfoList(cb func([]pulse.Stream, error)) {
	list(c, "source-output-list", c.srv.SourceOutputs, cb)
}

func (c *Context) CardInfoList(cb func([]pulse.Card, error)) {
	list(c, "card-list", c.srv.Cards, cb)
}

func (c *Context) mutate(op string, index uint32, arg interface{}, cb func(error)) {
	c.srv.record(op, index, arg)
	err := c.ready()
	if err == nil {
		c.srv.mu.Lock()
		err = c.srv.MutationErr
		c.srv.mu.Unlock()
	}
	c.loop.Post(func() {
		if cb != nil {
			cb(err)
		}
	})
}

func (c *Context) SetSinkVolume(index uint32, vol []uint32, cb func(error)) {
	c.mutate("set-sink-volume", index, vol, cb)
}

func (c *Context) SetSourceVolume(index uint32, vol []uint32, cb func(error)) {
	c.mutate("set-source-volume", index, vol, cb)
}

func (c *Context) SetSinkInputVolume(index uint32, vol []uint32, cb func(error)) {
	c.mutate("set-sink-input-volume", index, vol, cb)
}

func (c *Context) SetSourceOutputVolume(index uint32, vol []uint32, cb func(error)) {
	c.mutate("set-source-output-volume", index, vol, cb)
}

func (c *Context) SetSinkMute(index uint32, mute bool, cb func(error)) {
	c.mutate("set-sink-mute", index, mute, cb)
}

func (c *Context) SetSourceMute(index uint32, mute bool, cb func(error)) {
	c.mutate("set-source-mute", index, mute, cb)
}

func (c *Context) SetSinkInputMute(index uint32, mute bool, cb func(error)) {
	c.mutate("set-sink-input-mute", index, mute, cb)
}

func (c *Context) SetSourceOutputMute(index uint32, mute bool, cb func(error)) {
	c.mutate("set-source-output-mute", index, mute, cb)
}

func (c *Context) MoveSinkInput(index, sink uint32, cb func(error)) {
	c.mutate("move-sink-input", index, sink, cb)
}

func (c *Context) MoveSourceOutput(index, source uint32, cb func(error)) {
	c.mutate("move-source-output", index, source, cb)
}

func (c *Context) KillSinkInput(index uint32, cb func(error)) {
	c.mutate("kill-sink-input", index, nil, cb)
}

func (c *Context) KillSourceOutput(index uint32, cb func(error)) {
	c.mutate("kill-source-output", index, nil, cb)
}

func (c *Context) SetCardProfile(index uint32, profile string, cb func(error)) {
	c.mutate("set-card-profile", index, profile, cb)
}

func (c *Context) OpenPeak(target pulse.PeakTarget, cb func(float32)) (pulse.PeakStream, error) {
	c.srv.record("open-peak", target.Source, target.SinkInput)
	if err := c.ready(); err != nil {
		return nil, err
	}
	c.srv.mu.Lock()
	defer c.srv.mu.Unlock()
	if err := c.srv.PeakErr[target.Source]; err != nil {
		return nil, err
	}
	p := &Peak{Target: target, ctx: c, cb: cb, alive: true}
	c.srv.peaks = append(c.srv.peaks, p)
	reject := c.srv.PeakReject[target.Source]
	c.loop.Post(func() {
		c.srv.mu.Lock()
		defer c.srv.mu.Unlock()
		if reject != nil {
			p.alive = false
			return
		}
		if !p.closed {
			p.opened = true
		}
	})
	return p, nil
}

var errPeakClosed = errors.New("pulsetest: peak closed")

// Peak is a fake peak stream.
type Peak struct {
	Target pulse.PeakTarget

	ctx    *Context
	cb     func(float32)
	alive  bool
	opened bool
	closed bool
}

func (p *Peak) Alive() bool {
	p.ctx.srv.mu.Lock()
	defer p.ctx.srv.mu.Unlock()
	return p.alive
}

func (p *Peak) Close() {
	p.ctx.srv.mu.Lock()
	if p.closed {
		p.ctx.srv.mu.Unlock()
		return
	}
	p.closed = true
	p.alive = false
	p.ctx.srv.mu.Unlock()
	p.ctx.srv.record("close-peak", p.Target.Source, p.Target.SinkInput)
}

func (p *Peak) Opened() bool {
	p.ctx.srv.mu.Lock()
	defer p.ctx.srv.mu.Unlock()
	return p.opened
}

// Closed reports whether Close was called.
func (p *Peak) Closed() bool {
	p.ctx.srv.mu.Lock()
	defer p.ctx.srv.mu.Unlock()
	return p.closed
}

// Kill marks the stream dead as if the server dropped it.
func (p *Peak) Kill() {
	p.ctx.srv.mu.Lock()
	p.alive = false
	p.ctx.srv.mu.Unlock()
}

// Send posts a peak sample.
func (p *Peak) Send(v float32) error {
	if p.Closed() {
		return errPeakClosed
	}
	p.ctx.loop.Post(func() {
		if p.Alive() {
			p.cb(v)
		}
	})
	return nil
}
