package config

import (
	"time"

	"github.com/lattice-run/gatewayrt/internal/gerr"
)

// ActivationType is how an out-of-process module comes to life (spec.md
// §4.4, §6).
type ActivationType string

const (
	ActivationNone    ActivationType = "none"
	ActivationLaunch  ActivationType = "launch"
	ActivationInvalid ActivationType = "invalid"
)

const (
	defaultTimeout     = time.Second
	defaultGracePeriod = 3 * time.Second
)

// OOPEntry holds the out-of-process entrypoint options of spec.md §6,
// extracted from a module entry's opaque Config blob.
type OOPEntry struct {
	Activation  ActivationType
	ControlID   string
	MessageID   string // empty means "generate one"
	Timeout     time.Duration
	LaunchPath  string
	LaunchArgs  []string
	GracePeriod time.Duration
}

// ParseOOPEntry extracts and defaults the out-of-process options from a
// module entry's Config map. It never returns ActivationInvalid silently —
// an unrecognized activation.type is a parse error.
func ParseOOPEntry(cfg map[string]interface{}) (*OOPEntry, error) {
	e := &OOPEntry{
		Timeout:     defaultTimeout,
		GracePeriod: defaultGracePeriod,
	}

	activation, _ := cfg["activation.type"].(string)
	switch ActivationType(activation) {
	case ActivationNone:
		e.Activation = ActivationNone
	case ActivationLaunch:
		e.Activation = ActivationLaunch
	default:
		return nil, gerr.New(gerr.InvalidArgument, "config: unknown activation.type %q", activation)
	}

	controlID, _ := cfg["control.id"].(string)
	if controlID == "" {
		return nil, gerr.New(gerr.InvalidArgument, "config: control.id is required")
	}
	e.ControlID = controlID

	if messageID, ok := cfg["message.id"].(string); ok {
		e.MessageID = messageID
	}

	if timeoutMS, ok := numericField(cfg["timeout"]); ok {
		e.Timeout = time.Duration(timeoutMS) * time.Millisecond
	}

	if e.Activation == ActivationLaunch {
		path, _ := cfg["launch.path"].(string)
		if path == "" {
			return nil, gerr.New(gerr.InvalidArgument, "config: launch.path is required when activation.type is launch")
		}
		e.LaunchPath = path

		if rawArgs, ok := cfg["launch.args"].([]interface{}); ok {
			for _, a := range rawArgs {
				if s, ok := a.(string); ok {
					e.LaunchArgs = append(e.LaunchArgs, s)
				}
			}
		}

		if graceMS, ok := numericField(cfg["launch.grace.period.ms"]); ok {
			e.GracePeriod = time.Duration(graceMS) * time.Millisecond
		}
	}

	return e, nil
}

// numericField tolerates both JSON's float64 and YAML's int decode shapes
// for the same field.
func numericField(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
