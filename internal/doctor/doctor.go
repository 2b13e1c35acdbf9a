package doctor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/AJMerr/gopamix/internal/engine"
	"github.com/AJMerr/gopamix/internal/pulse"
)

type Config struct {
	Server    string
	AppName   string
	TimeoutMS int
}

// Report Types
type Check struct {
	Name     string `json:"name"`
	OK       bool   `json:"ok"`
	Warning  bool   `json:"warning"`
	Duration int64  `json:"duration"`
	Message  string `json:"message"`
}

type Report struct {
	Server        string  `json:"server"`
	TimeoutMS     int     `json:"timeout_ms"`
	ServerVersion string  `json:"server_version"`
	Checks        []Check `json:"checks"`
	Result        string  `json:"result"`
	ExitCode      int     `json:"exit_code"`
}

const (
	ExitOK         = 0
	ExitNoConnect  = 2
	ExitServerInfo = 3
	ExitCmdFailed  = 4
	ExitDeepFailed = 5
	ExitAuthFailed = 6
	ExitInternal   = 9
)

// await issues one request and pumps the loop until its callback ran.
func await[T any](ctx context.Context, conn *engine.Connection, issue func(c pulse.Context, done func(T, error))) (v T, d time.Duration, err error) {
	start := time.Now()
	conn.Do(func(s engine.Session) {
		finished := false
		issue(s, func(r T, e error) {
			v, err, finished = r, e, true
		})
		for !finished {
			if werr := s.Wait(ctx); werr != nil && !finished {
				err = werr
				return
			}
		}
	})
	return v, time.Since(start), err
}

// Core Logic
func Run(ctx context.Context, srv pulse.Server, cfg Config, deep bool) Report {
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond

	rep := Report{
		Server:    serverLabel(cfg.Server),
		TimeoutMS: cfg.TimeoutMS,
		Checks:    []Check{},
		Result:    "FAIL",
		ExitCode:  ExitInternal,
	}
	fail := func(c Check, result string, code int) Report {
		log.WithField("check", c.Name).Warn(c.Message)
		rep.Checks = append(rep.Checks, c)
		rep.Result = result
		rep.ExitCode = code
		return rep
	}

	// Connection
	start := time.Now()
	conn, err := engine.Connect(ctx, srv, engine.Config{
		Config: pulse.Config{Server: cfg.Server, AppName: cfg.AppName, Timeout: timeout},
	})
	if err != nil {
		code := ExitNoConnect
		switch {
		case errors.Is(err, engine.ErrMainloopCreate), errors.Is(err, engine.ErrContextCreate):
			code = ExitInternal
		case strings.Contains(strings.ToLower(err.Error()), "access denied"):
			code = ExitAuthFailed
		}
		return fail(Check{"connect", false, false, ms(time.Since(start)), err.Error()}, "FAIL(connect)", code)
	}
	defer conn.Close()
	rep.Checks = append(rep.Checks, Check{"connect", true, false, ms(time.Since(start)), "context ready"})

	// Server info
	info, d, err := await(ctx, conn, func(c pulse.Context, done func(pulse.ServerInfo, error)) { c.ServerInfo(done) })
	if err != nil {
		return fail(Check{"server_info", false, false, ms(d), err.Error()}, "FAIL(server_info)", ExitServerInfo)
	}
	rep.ServerVersion = strings.TrimSpace(info.PackageName + " " + info.PackageVersion)
	rep.Checks = append(rep.Checks, Check{"server_info", true, false, ms(d),
		fmt.Sprintf("%s on %s, default sink %q", rep.ServerVersion, info.Hostname, info.DefaultSink)})

	// Sinks
	sinks, d, err := await(ctx, conn, func(c pulse.Context, done func([]pulse.Device, error)) { c.SinkInfoList(done) })
	if err != nil {
		return fail(Check{"sinks", false, false, ms(d), err.Error()}, "FAIL(sinks)", ExitCmdFailed)
	}
	warn := len(sinks) == 0
	msg := fmt.Sprintf("sinks=%d", len(sinks))
	if warn {
		msg += " (no output device; is a sound card or null sink loaded?)"
	}
	rep.Checks = append(rep.Checks, Check{"sinks", true, warn, ms(d), msg})

	// Sources
	sources, d, err := await(ctx, conn, func(c pulse.Context, done func([]pulse.Device, error)) { c.SourceInfoList(done) })
	if err != nil {
		return fail(Check{"sources", false, false, ms(d), err.Error()}, "FAIL(sources)", ExitCmdFailed)
	}
	rep.Checks = append(rep.Checks, Check{"sources", true, len(sources) == 0, ms(d), fmt.Sprintf("sources=%d", len(sources))})

	// Streams
	inputs, d, err := await(ctx, conn, func(c pulse.Context, done func([]pulse.Stream, error)) { c.SinkInputInfoList(done) })
	if err != nil {
		return fail(Check{"streams", false, false, ms(d), err.Error()}, "FAIL(streams)", ExitCmdFailed)
	}
	outputs, d2, err := await(ctx, conn, func(c pulse.Context, done func([]pulse.Stream, error)) { c.SourceOutputInfoList(done) })
	if err != nil {
		return fail(Check{"streams", false, false, ms(d + d2), err.Error()}, "FAIL(streams)", ExitCmdFailed)
	}
	rep.Checks = append(rep.Checks, Check{"streams", true, false, ms(d + d2),
		fmt.Sprintf("playback=%d recording=%d", len(inputs), len(outputs))})

	// Deep
	if deep {
		c, ok := peakCheck(ctx, conn, info, sinks)
		if !ok {
			return fail(c, "FAIL(deep)", ExitDeepFailed)
		}
		rep.Checks = append(rep.Checks, c)
	}

	rep.Result = "PASS"
	rep.ExitCode = ExitOK
	return rep
}

// peakCheck opens a peak monitor on the default sink's monitor source, waits
// for the server to accept or reject it, then closes it.
func peakCheck(ctx context.Context, conn *engine.Connection, info pulse.ServerInfo, sinks []pulse.Device) (Check, bool) {
	start := time.Now()
	var target *pulse.Device
	for i := range sinks {
		if sinks[i].Name == info.DefaultSink {
			target = &sinks[i]
			break
		}
	}
	if target == nil && len(sinks) > 0 {
		target = &sinks[0]
	}
	if target == nil {
		return Check{"peak_monitor", false, false, 0, "no sink to monitor"}, false
	}

	var openErr error
	opened := false
	conn.Do(func(s engine.Session) {
		stream, err := s.OpenPeak(pulse.PeakTarget{Source: target.Monitor, SinkInput: pulse.NoIndex}, func(float32) {})
		if err != nil {
			openErr = err
			return
		}
		defer stream.Close()
		for stream.Alive() && !stream.Opened() {
			if err := s.Wait(ctx); err != nil {
				openErr = err
				return
			}
		}
		opened = stream.Alive() && stream.Opened()
	})
	d := ms(time.Since(start))
	if openErr != nil {
		return Check{"peak_monitor", false, false, d, fmt.Sprintf("open on source %d failed: %v", target.Monitor, openErr)}, false
	}
	if !opened {
		return Check{"peak_monitor", false, false, d, fmt.Sprintf("server rejected the stream on source %d", target.Monitor)}, false
	}
	return Check{"peak_monitor", true, false, d, fmt.Sprintf("peak stream on %s monitor opened/closed OK", target.Name)}, true
}

func serverLabel(s string) string {
	if s == "" {
		return "default"
	}
	return s
}

func ms(d time.Duration) int64 { return d.Milliseconds() }
