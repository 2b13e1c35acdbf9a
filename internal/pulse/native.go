package pulse

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"net"
	"strings"
	"sync"

	"github.com/jfreymuth/pulse/proto"
	log "github.com/sirupsen/logrus"
)

const (
	opQueueSize = 256
	peakRate    = 25 // peak samples per second
)

// Native is the Server speaking the PulseAudio native protocol.
type Native struct{}

func (Native) NewContext(loop *Mainloop, props Proplist) (Context, error) {
	if loop == nil {
		return nil, errors.New("pulse: nil mainloop")
	}
	if props[PropApplicationName] == "" {
		return nil, errors.New("pulse: proplist lacks " + PropApplicationName)
	}
	return &nativeContext{
		loop:  loop,
		props: props.Clone(),
		ops:   make(chan func(*proto.Client), opQueueSize),
		done:  make(chan struct{}),
		peaks: map[uint32]*nativePeak{},
	}, nil
}

type nativeContext struct {
	loop  *Mainloop
	props Proplist

	// guarded by the loop lock
	state   State
	stateCb func()
	subCb   func(Event)
	open    []*nativePeak

	// requests run in order on the worker goroutine
	ops       chan func(*proto.Client)
	done      chan struct{}
	closeOnce sync.Once

	// record stream index -> peak, shared with the protocol read goroutine
	pmu   sync.Mutex
	peaks map[uint32]*nativePeak
}

func (c *nativeContext) State() State { return c.state }

func (c *nativeContext) SetStateCallback(cb func()) { c.stateCb = cb }

func (c *nativeContext) SetSubscribeCallback(cb func(Event)) { c.subCb = cb }

func (c *nativeContext) setState(s State) {
	if c.state == s {
		return
	}
	c.state = s
	if s.Terminal() {
		for _, p := range c.open {
			p.alive = false
		}
	}
	if c.stateCb != nil {
		c.stateCb()
	}
}

func (c *nativeContext) Connect(server string) error {
	if c.state != StateUnconnected {
		return fmt.Errorf("pulse: connect called in state %s", c.state)
	}
	c.setState(StateConnecting)
	go c.run(server)
	return nil
}

func (c *nativeContext) Disconnect() {
	if c.state != StateTerminated {
		c.setState(StateTerminated)
	}
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *nativeContext) run(server string) {
	client, conn, err := proto.Connect(server)
	if err != nil {
		log.WithError(err).WithField("server", server).Debug("pulse: dial failed")
		c.loop.Post(func() { c.setState(StateFailed) })
		return
	}
	client.Callback = c.onMessage

	err = client.Request(&proto.SetClientName{Props: toPropList(c.props)}, &proto.SetClientNameReply{})
	if err != nil {
		conn.Close()
		log.WithError(err).Debug("pulse: set client name failed")
		c.loop.Post(func() { c.setState(StateFailed) })
		return
	}
	c.loop.Post(func() {
		if c.state == StateConnecting {
			c.setState(StateReady)
		}
	})
	c.serve(client, conn)
}

func (c *nativeContext) serve(client *proto.Client, conn net.Conn) {
	defer conn.Close()
	for {
		select {
		case op := <-c.ops:
			op(client)
		case <-c.done:
			return
		}
	}
}

func (c *nativeContext) onMessage(msg interface{}) {
	switch m := msg.(type) {
	case *proto.SubscribeEvent:
		ev := DecodeEvent(uint32(m.Event), m.Index)
		c.loop.Post(func() {
			if c.subCb != nil {
				c.subCb(ev)
			}
		})
	case *proto.DataPacket:
		c.pmu.Lock()
		p := c.peaks[m.StreamIndex]
		c.pmu.Unlock()
		if p == nil {
			return
		}
		if v, ok := peakOf(m.Data); ok {
			c.loop.Post(func() {
				if p.alive {
					p.cb(v)
				}
			})
		}
	case *proto.RecordStreamKilled:
		c.pmu.Lock()
		p := c.peaks[m.StreamIndex]
		delete(c.peaks, m.StreamIndex)
		c.pmu.Unlock()
		if p != nil {
			c.loop.Post(func() {
				p.alive = false
				c.forget(p)
			})
		}
	case *proto.ConnectionClosed:
		c.loop.Post(func() {
			if c.state == StateReady || c.state == StateConnecting {
				c.setState(StateFailed)
			}
		})
	}
}

// enqueue hands op to the worker. fail is posted instead when the context is
// not ready or the worker is saturated.
func (c *nativeContext) enqueue(op func(*proto.Client), fail func(error)) {
	if c.state != StateReady {
		c.loop.Post(func() { fail(ErrNotReady) })
		return
	}
	select {
	case c.ops <- op:
	default:
		c.loop.Post(func() { fail(errors.New("pulse: request queue full")) })
	}
}

func (c *nativeContext) call(req proto.RequestArgs, cb func(error)) {
	c.enqueue(func(pc *proto.Client) {
		err := mapError(pc.Request(req, nil))
		c.loop.Post(func() {
			if cb != nil {
				cb(err)
			}
		})
	}, func(err error) {
		if cb != nil {
			cb(err)
		}
	})
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(strings.ToLower(err.Error()), "no such entity") {
		return fmt.Errorf("%w: %v", ErrNoEntity, err)
	}
	return err
}

func (c *nativeContext) Subscribe(mask Mask, cb func(error)) {
	c.call(&proto.Subscribe{Mask: proto.SubscriptionMask(mask)}, cb)
}

func (c *nativeContext) ServerInfo(cb func(ServerInfo, error)) {
	c.enqueue(func(pc *proto.Client) {
		var r proto.GetServerInfoReply
		err := mapError(pc.Request(&proto.GetServerInfo{}, &r))
		info := ServerInfo{
			PackageName:    r.PackageName,
			PackageVersion: r.PackageVersion,
			Hostname:       r.Hostname,
			DefaultSink:    r.DefaultSinkName,
			DefaultSource:  r.DefaultSourceName,
		}
		c.loop.Post(func() { cb(info, err) })
	}, func(err error) { cb(ServerInfo{}, err) })
}

func (c *nativeContext) SinkInfo(index uint32, cb func(Device, error)) {
	c.enqueue(func(pc *proto.Client) {
		var r proto.GetSinkInfoReply
		err := mapError(pc.Request(&proto.GetSinkInfo{SinkIndex: index}, &r))
		d := sinkDevice(&r)
		c.loop.Post(func() { cb(d, err) })
	}, func(err error) { cb(Device{}, err) })
}

func (c *nativeContext) SourceInfo(index uint32, cb func(Device, error)) {
	c.enqueue(func(pc *proto.Client) {
		var r proto.GetSourceInfoReply
		err := mapError(pc.Request(&proto.GetSourceInfo{SourceIndex: index}, &r))
		d := sourceDevice(&r)
		c.loop.Post(func() { cb(d, err) })
	}, func(err error) { cb(Device{}, err) })
}

func (c *nativeContext) SinkInputInfo(index uint32, cb func(Stream, error)) {
	c.enqueue(func(pc *proto.Client) {
		var r proto.GetSinkInputInfoReply
		err := mapError(pc.Request(&proto.GetSinkInputInfo{SinkInputIndex: index}, &r))
		s := sinkInputStream(&r)
		c.loop.Post(func() { cb(s, err) })
	}, func(err error) { cb(Stream{}, err) })
}

func (c *nativeContext) SourceOutputInfo(index uint32, cb func(Stream, error)) {
	c.enqueue(func(pc *proto.Client) {
		var r proto.GetSourceOutputInfoReply
		err := mapError(pc.Request(&proto.GetSourceOutputInfo{SourceOutpuIndex: index}, &r))
		s := sourceOutputStream(&r)
		c.loop.Post(func() { cb(s, err) })
	}, func(err error) { cb(Stream{}, err) })
}

func (c *nativeContext) CardInfo(index uint32, cb func(Card, error)) {
	c.enqueue(func(pc *proto.Client) {
		var r proto.GetCardInfoReply
		err := mapError(pc.Request(&proto.GetCardInfo{CardIndex: index}, &r))
		card := cardOf(&r)
		c.loop.Post(func() { cb(card, err) })
	}, func(err error) { cb(Card{}, err) })
}

func (c *nativeContext) ClientInfo(index uint32, cb func(ClientInfo, error)) {
	c.enqueue(func(pc *proto.Client) {
		var r proto.GetClientInfoReply
		err := mapError(pc.Request(&proto.GetClientInfo{ClientIndex: index}, &r))
		info := ClientInfo{Index: r.ClientIndex, Application: r.Application}
		if name := propString(r.Properties, PropApplicationName); name != "" {
			info.Application = name
		}
		c.loop.Post(func() { cb(info, err) })
	}, func(err error) { cb(ClientInfo{}, err) })
}

func (c *nativeContext) SinkInfoList(cb func([]Device, error)) {
	c.enqueue(func(pc *proto.Client) {
		var r proto.GetSinkInfoListReply
		err := mapError(pc.Request(&proto.GetSinkInfoList{}, &r))
		out := make([]Device, 0, len(r))
		for _, s := range r {
			out = append(out, sinkDevice(s))
		}
		c.loop.Post(func() { cb(out, err) })
	}, func(err error) { cb(nil, err) })
}

func (c *nativeContext) SourceInfoList(cb func([]Device, error)) {
	c.enqueue(func(pc *proto.Client) {
		var r proto.GetSourceInfoListReply
		err := mapError(pc.Request(&proto.GetSourceInfoList{}, &r))
		out := make([]Device, 0, len(r))
		for _, s := range r {
			out = append(out, sourceDevice(s))
		}
		c.loop.Post(func() { cb(out, err) })
	}, func(err error) { cb(nil, err) })
}

func (c *nativeContext) SinkInputInfoList(cb func([]Stream, error)) {
	c.enqueue(func(pc *proto.Client) {
		var r proto.GetSinkInputInfoListReply
		err := mapError(pc.Request(&proto.GetSinkInputInfoList{}, &r))
		out := make([]Stream, 0, len(r))
		for _, s := range r {
			out = append(out, sinkInputStream(s))
		}
		c.loop.Post(func() { cb(out, err) })
	}, func(err error) { cb(nil, err) })
}

func (c *nativeContext) SourceOutputInfoList(cb func([]Stream, error)) {
	c.enqueue(func(pc *proto.Client) {
		var r proto.GetSourceOutputInfoListReply
		err := mapError(pc.Request(&proto.GetSourceOutputInfoList{}, &r))
		out := make([]Stream, 0, len(r))
		for _, s := range r {
			out = append(out, sourceOutputStream(s))
		}
		c.loop.Post(func() { cb(out, err) })
	}, func(err error) { cb(nil, err) })
}

func (c *nativeContext) CardInfoList(cb func([]Card, error)) {
	c.enqueue(func(pc *proto.Client) {
		var r proto.GetCardInfoListReply
		err := mapError(pc.Request(&proto.GetCardInfoList{}, &r))
		out := make([]Card, 0, len(r))
		for _, card := range r {
			out = append(out, cardOf(card))
		}
		c.loop.Post(func() { cb(out, err) })
	}, func(err error) { cb(nil, err) })
}

func (c *nativeContext) SetSinkVolume(index uint32, vol []uint32, cb func(error)) {
	c.call(&proto.SetSinkVolume{SinkIndex: index, ChannelVolumes: proto.ChannelVolumes(vol)}, cb)
}

func (c *nativeContext) SetSourceVolume(index uint32, vol []uint32, cb func(error)) {
	c.call(&proto.SetSourceVolume{SourceIndex: index, ChannelVolumes: proto.ChannelVolumes(vol)}, cb)
}

func (c *nativeContext) SetSinkInputVolume(index uint32, vol []uint32, cb func(error)) {
	c.call(&proto.SetSinkInputVolume{SinkInputIndex: index, ChannelVolumes: proto.ChannelVolumes(vol)}, cb)
}

func (c *nativeContext) SetSourceOutputVolume(index uint32, vol []uint32, cb func(error)) {
	c.call(&proto.SetSourceOutputVolume{SourceOutputIndex: index, ChannelVolumes: proto.ChannelVolumes(vol)}, cb)
}

func (c *nativeContext) SetSinkMute(index uint32, mute bool, cb func(error)) {
	c.call(&proto.SetSinkMute{SinkIndex: index, Mute: mute}, cb)
}

func (c *nativeContext) SetSourceMute(index uint32, mute bool, cb func(error)) {
	c.call(&proto.SetSourceMute{SourceIndex: index, Mute: mute}, cb)
}

func (c *nativeContext) SetSinkInputMute(index uint32, mute bool, cb func(error)) {
	c.call(&proto.SetSinkInputMute{SinkInputIndex: index, Mute: mute}, cb)
}

func (c *nativeContext) SetSourceOutputMute(index uint32, mute bool, cb func(error)) {
	c.call(&proto.SetSourceOutputMute{SourceOutputIndex: index, Mute: mute}, cb)
}

func (c *nativeContext) MoveSinkInput(index, sink uint32, cb func(error)) {
	c.call(&proto.MoveSinkInput{SinkInputIndex: index, DeviceIndex: sink}, cb)
}

func (c *nativeContext) MoveSourceOutput(index, source uint32, cb func(error)) {
	c.call(&proto.MoveSourceOutput{SourceOutputIndex: index, DeviceIndex: source}, cb)
}

func (c *nativeContext) KillSinkInput(index uint32, cb func(error)) {
	c.call(&proto.KillSinkInput{SinkInputIndex: index}, cb)
}

func (c *nativeContext) KillSourceOutput(index uint32, cb func(error)) {
	c.call(&proto.KillSourceOutput{SourceOutputIndex: index}, cb)
}

func (c *nativeContext) SetCardProfile(index uint32, profile string, cb func(error)) {
	c.call(&proto.SetCardProfile{CardIndex: index, ProfileName: profile}, cb)
}

// nativePeak is a mono peak-detect record stream. Fields other than the
// stream index are guarded by the loop lock.
type nativePeak struct {
	ctx    *nativeContext
	cb     func(float32)
	alive  bool
	closed bool
	index  uint32
	opened bool
}

func (p *nativePeak) Alive() bool { return p.alive }

func (p *nativePeak) Opened() bool { return p.opened }

func (p *nativePeak) Close() {
	if p.closed {
		return
	}
	p.closed = true
	p.alive = false
	p.ctx.forget(p)
	if p.opened {
		p.ctx.deleteRecord(p.index)
	}
}

func (c *nativeContext) OpenPeak(target PeakTarget, cb func(float32)) (PeakStream, error) {
	if c.state != StateReady {
		return nil, ErrNotReady
	}
	if target.Source == NoIndex {
		return nil, errors.New("pulse: peak target has no source")
	}
	p := &nativePeak{ctx: c, cb: cb, alive: true}
	c.open = append(c.open, p)

	req := &proto.CreateRecordStream{
		SampleSpec:             proto.SampleSpec{Format: proto.FormatFloat32LE, Channels: 1, Rate: peakRate},
		ChannelMap:             proto.ChannelMap{0}, // mono
		SourceIndex:            target.Source,
		BufferMaxLength:        NoIndex,
		BufferFragSize:         4,
		PeakDetect:             true,
		AdjustLatency:          true,
		DontInhibitAutoSuspend: true,
		DirectOnInputIndex:     target.SinkInput,
		Properties: toPropList(Proplist{
			PropApplicationName: c.props[PropApplicationName],
			PropMediaName:       "peak monitor",
		}),
	}
	c.enqueue(func(pc *proto.Client) {
		var r proto.CreateRecordStreamReply
		if err := pc.Request(req, &r); err != nil {
			log.WithError(err).WithField("source", target.Source).Debug("pulse: peak stream rejected")
			c.loop.Post(func() {
				p.alive = false
				c.forget(p)
			})
			return
		}
		c.pmu.Lock()
		c.peaks[r.StreamIndex] = p
		c.pmu.Unlock()
		c.loop.Post(func() {
			p.index = r.StreamIndex
			p.opened = true
			if p.closed {
				c.deleteRecord(r.StreamIndex)
			}
		})
	}, func(error) {
		p.alive = false
		c.forget(p)
	})
	return p, nil
}

func (c *nativeContext) forget(p *nativePeak) {
	for i, o := range c.open {
		if o == p {
			c.open = append(c.open[:i], c.open[i+1:]...)
			return
		}
	}
}

func (c *nativeContext) deleteRecord(index uint32) {
	c.pmu.Lock()
	delete(c.peaks, index)
	c.pmu.Unlock()
	if c.state == StateReady {
		c.call(&proto.DeleteRecordStream{StreamIndex: index}, nil)
	}
}

// peakOf returns the loudest float32 sample in a little-endian packet.
func peakOf(data []byte) (float32, bool) {
	if len(data) < 4 {
		return 0, false
	}
	var peak float32
	for i := 0; i+4 <= len(data); i += 4 {
		v := math.Float32frombits(binary.LittleEndian.Uint32(data[i:]))
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	if peak > 1 {
		peak = 1
	}
	return peak, true
}

func toPropList(p Proplist) proto.PropList {
	out := make(proto.PropList, len(p))
	for k, v := range p {
		out[k] = proto.PropListString(v)
	}
	return out
}

func propString(p proto.PropList, key string) string {
	e, ok := p[key]
	if !ok {
		return ""
	}
	return strings.TrimRight(string(e), "\x00")
}

func volumes(v proto.ChannelVolumes) []uint32 {
	out := make([]uint32, len(v))
	for i, c := range v {
		out[i] = uint32(c)
	}
	return out
}

func firstNonEmpty(s ...string) string {
	for _, v := range s {
		if v != "" {
			return v
		}
	}
	return ""
}

func sinkDevice(r *proto.GetSinkInfoReply) Device {
	return Device{
		Index:       r.SinkIndex,
		Name:        r.SinkName,
		Description: firstNonEmpty(propString(r.Properties, PropDeviceDescription), r.SinkName),
		Icon:        propString(r.Properties, PropDeviceIconName),
		Volume:      volumes(r.ChannelVolumes),
		Mute:        r.Mute,
		Monitor:     r.MonitorSourceIndex,
		Card:        r.CardIndex,
	}
}

func sourceDevice(r *proto.GetSourceInfoReply) Device {
	return Device{
		Index:       r.SourceIndex,
		Name:        r.SourceName,
		Description: firstNonEmpty(propString(r.Properties, PropDeviceDescription), r.SourceName),
		Icon:        propString(r.Properties, PropDeviceIconName),
		Volume:      volumes(r.ChannelVolumes),
		Mute:        r.Mute,
		Monitor:     r.SourceIndex,
		Card:        r.CardIndex,
	}
}

func sinkInputStream(r *proto.GetSinkInputInfoReply) Stream {
	return Stream{
		Index:       r.SinkInputIndex,
		Name:        r.MediaName,
		Application: propString(r.Properties, PropApplicationName),
		Icon:        propString(r.Properties, PropApplicationIconName),
		Client:      r.ClientIndex,
		Device:      r.SinkIndex,
		Volume:      volumes(r.ChannelVolumes),
		Mute:        r.Muted,
		Corked:      r.Corked,
	}
}

func sourceOutputStream(r *proto.GetSourceOutputInfoReply) Stream {
	return Stream{
		Index:       r.SourceOutpuIndex,
		Name:        r.MediaName,
		Application: propString(r.Properties, PropApplicationName),
		Icon:        propString(r.Properties, PropApplicationIconName),
		Client:      r.ClientIndex,
		Device:      r.SourceIndex,
		Volume:      volumes(r.ChannelVolumes),
		Mute:        r.Muted,
		Corked:      r.Corked,
	}
}

func cardOf(r *proto.GetCardInfoReply) Card {
	card := Card{
		Index:         r.CardIndex,
		Name:          r.CardName,
		Description:   firstNonEmpty(propString(r.Properties, PropDeviceDescription), r.CardName),
		Icon:          propString(r.Properties, PropDeviceIconName),
		ActiveProfile: r.ActiveProfileName,
	}
	for _, p := range r.Profiles {
		card.Profiles = append(card.Profiles, CardProfile{
			Name:        p.Name,
			Description: p.Description,
			Available:   p.Available != 1, // 1 = PA_AVAILABLE_NO
		})
	}
	return card
}
