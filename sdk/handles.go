package sdk

import (
	"fmt"
	"strings"
)

// Handle kinds.
type HandleKind string

const (
	HandleInput  HandleKind = "input"
	HandleOutput HandleKind = "output"
	HandleDock   HandleKind = "dock"
)

// Dock handle roles. "prev" and "output" face the inner graph as sources;
// "current" and "input" are targets carrying feedback into the next
// iteration.
const (
	DockRolePrev    = "prev"
	DockRoleCurrent = "current"
	DockRoleOutput  = "output"
	DockRoleInput   = "input"
)

// Handle is a parsed handle id.
//
// The grammar is normative:
//
//	input:<name>[:internal]
//	output:<name>[:internal]
//	dock:<slot>:<prev|current|output|input>
type Handle struct {
	Kind     HandleKind
	Name     string // port name, or dock slot name
	Role     string // dock role, empty otherwise
	Internal bool   // loop-container internal face
}

// ParseHandle parses a handle id. An empty id parses as the implicit
// "output"/"input" port depending on context, so callers should apply
// defaults before parsing; ParseHandle itself rejects empty strings.
func ParseHandle(id string) (Handle, error) {
	if id == "" {
		return Handle{}, fmt.Errorf("empty handle id")
	}

	parts := strings.Split(id, ":")
	switch parts[0] {
	case "input", "output":
		h := Handle{Kind: HandleKind(parts[0])}
		switch len(parts) {
		case 2:
			h.Name = parts[1]
		case 3:
			if parts[2] != "internal" {
				return Handle{}, fmt.Errorf("handle %q: unknown suffix %q", id, parts[2])
			}
			h.Name = parts[1]
			h.Internal = true
		default:
			return Handle{}, fmt.Errorf("handle %q: malformed", id)
		}
		if h.Name == "" {
			return Handle{}, fmt.Errorf("handle %q: missing port name", id)
		}
		return h, nil

	case "dock":
		if len(parts) != 3 {
			return Handle{}, fmt.Errorf("dock handle %q: want dock:<slot>:<role>", id)
		}
		role := parts[2]
		switch role {
		case DockRolePrev, DockRoleCurrent, DockRoleOutput, DockRoleInput:
		default:
			return Handle{}, fmt.Errorf("dock handle %q: unknown role %q", id, role)
		}
		return Handle{Kind: HandleDock, Name: parts[1], Role: role}, nil

	default:
		return Handle{}, fmt.Errorf("handle %q: unknown namespace %q", id, parts[0])
	}
}

// String renders the handle back to its wire form.
func (h Handle) String() string {
	switch h.Kind {
	case HandleDock:
		return fmt.Sprintf("dock:%s:%s", h.Name, h.Role)
	default:
		s := fmt.Sprintf("%s:%s", h.Kind, h.Name)
		if h.Internal {
			s += ":internal"
		}
		return s
	}
}

// InputHandle builds the handle id for an input port.
func InputHandle(name string) string { return "input:" + name }

// OutputHandle builds the handle id for an output port.
func OutputHandle(name string) string { return "output:" + name }

// DockHandle builds the handle id for a dock slot role.
func DockHandle(slot, role string) string { return "dock:" + slot + ":" + role }

// IsFeedbackHandle reports whether a target handle carries the previous
// iteration's value into a loop container. Such edges are excluded from
// dependency analysis; only the loop executor consults them.
func IsFeedbackHandle(targetHandle string) bool {
	h, err := ParseHandle(targetHandle)
	if err != nil {
		return false
	}
	return h.Kind == HandleDock && (h.Role == DockRoleCurrent || h.Role == DockRoleInput)
}

// TargetInputName extracts the input port name a target handle lands on,
// stripping the namespace and any ":internal" suffix. Dock handles resolve
// to their slot name. An empty handle means the implicit "input" port.
func TargetInputName(targetHandle string) string {
	if targetHandle == "" {
		return "input"
	}
	h, err := ParseHandle(targetHandle)
	if err != nil {
		return targetHandle
	}
	return h.Name
}

// SourceOutputName extracts the output port name a source handle reads
// from. An empty handle means the implicit "output" port.
func SourceOutputName(sourceHandle string) string {
	if sourceHandle == "" {
		return "output"
	}
	h, err := ParseHandle(sourceHandle)
	if err != nil {
		return sourceHandle
	}
	return h.Name
}
