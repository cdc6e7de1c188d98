package oop

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/lattice-run/gatewayrt/internal/control"
	"github.com/lattice-run/gatewayrt/internal/gerr"
	"github.com/lattice-run/gatewayrt/internal/glog"
	"github.com/lattice-run/gatewayrt/internal/message"
	"github.com/lattice-run/gatewayrt/internal/module"
	"github.com/lattice-run/gatewayrt/internal/transport"
)

// RemoteRuntime is the out-of-process side of the transport: a module
// binary built against this package dials the gateway's control and
// message sockets, answers the CREATE/START/DESTROY handshake, and pumps
// messages between the wire and a module.Hooks table, the same hooks a
// native-dynamic module would implement.
//
// Grounded on the original source's module-host side of
// outprocess_module.c and the Java nanomsg binding's client role
// (v1/proxy/gateway/java/nanomsg-binding/java_nanomsg.c): dial, not
// listen; answer CREATE with a REPLY status byte.
type RemoteRuntime struct {
	ctrl  transport.Socket
	data  transport.Socket
	hooks module.Hooks
	state module.State
	// created is set once a CREATE has succeeded; a later CREATE on the
	// same runtime is rejected rather than rebuilding the hosted module.
	created bool
	log     zerolog.Logger
}

// DialRemote connects to a gateway-hosted proxy's control and message
// endpoints.
func DialRemote(ctrlURI, dataURI transport.URI, timeout time.Duration, hooks module.Hooks) (*RemoteRuntime, error) {
	if err := hooks.Validate(); err != nil {
		return nil, err
	}
	ctrl, err := transport.Dial(ctrlURI, timeout)
	if err != nil {
		return nil, err
	}
	data, err := transport.Dial(dataURI, timeout)
	if err != nil {
		ctrl.Close()
		return nil, err
	}
	return &RemoteRuntime{ctrl: ctrl, data: data, hooks: hooks, log: glog.Component("oop-remote")}, nil
}

// Run services control frames until DESTROY is received or the control
// socket fails, blocking the calling goroutine. A module binary's main
// function is expected to call Run directly.
func (r *RemoteRuntime) Run() error {
	for {
		frame, err := r.ctrl.Recv()
		if err != nil {
			return gerr.Wrap(gerr.TransportFailure, err, "oop: remote control channel failed")
		}
		f, err := control.Decode(frame)
		if err != nil {
			r.reply(control.StatusRejected)
			continue
		}
		switch f.Type {
		case control.TypeCreate:
			r.handleCreate(f)
		case control.TypeStart:
			if err := module.CallStart(r.hooks, r.state); err != nil {
				r.log.Warn().Err(err).Msg("start hook failed")
			}
		case control.TypeDestroy:
			_ = module.CallDestroy(r.hooks, r.state)
			r.ctrl.Close()
			r.data.Close()
			return nil
		default:
			r.log.Warn().Str("type", f.Type.String()).Msg("unexpected control frame")
		}
	}
}

func (r *RemoteRuntime) handleCreate(f control.Frame) {
	if r.created {
		r.reply(control.StatusRejected)
		return
	}
	var cfg module.Config
	if f.Args != "" {
		if err := json.Unmarshal([]byte(f.Args), &cfg); err != nil {
			r.reply(control.StatusRejected)
			return
		}
	}
	if r.hooks.ParseConfiguration != nil {
		parsed, err := r.hooks.ParseConfiguration(cfg)
		if err != nil {
			r.reply(control.StatusRejected)
			return
		}
		cfg = parsed
	}
	state, err := module.CallCreate(r.hooks, cfg)
	if err != nil {
		r.reply(control.StatusInternal)
		return
	}
	r.state = state
	r.created = true
	r.reply(control.StatusOK)
	go r.pumpData()
}

func (r *RemoteRuntime) pumpData() {
	for {
		frame, err := r.data.Recv()
		if err != nil {
			return
		}
		msg, err := message.Unmarshal(frame)
		if err != nil {
			r.log.Warn().Err(err).Msg("dropped inbound frame: deserialize failed")
			continue
		}
		if err := module.CallReceive(r.hooks, r.state, msg); err != nil {
			r.log.Warn().Err(err).Msg("receive hook failed")
		}
	}
}

// Publish sends msg out over the message socket toward the gateway, to be
// republished under this module's identity.
func (r *RemoteRuntime) Publish(msg *message.Message) error {
	payload, err := msg.Marshal()
	if err != nil {
		return err
	}
	return r.data.Send(payload)
}

// Detach tells the gateway-side proxy that this remote is about to drop its
// end of the channel, so the proxy's control poller re-runs the creation
// handshake on the next connection instead of treating the disconnect as a
// destroy (spec.md §4.4 "Steady state").
func (r *RemoteRuntime) Detach() {
	r.reply(control.StatusDetached)
}

func (r *RemoteRuntime) reply(status control.ReplyStatus) {
	frame, err := control.Encode(control.Frame{Type: control.TypeReply, Status: status})
	if err != nil {
		return
	}
	_ = r.ctrl.Send(frame)
}
