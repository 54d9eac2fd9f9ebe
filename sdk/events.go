package sdk

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// EventType identifies an execution event.
type EventType string

const (
	EventNodeStart         EventType = "node-start"
	EventNodeOutput        EventType = "node-output"
	EventNodeComplete      EventType = "node-complete"
	EventEdgeExecuted      EventType = "edge-executed"
	EventIterationStart    EventType = "iteration-start"
	EventIterationComplete EventType = "iteration-complete"
	EventWorkflowComplete  EventType = "workflow-complete"
)

// Event is the envelope for the execution event stream. Exactly one payload
// group is populated per type.
//
// Ordering guarantees: for each node, node-start precedes any node-output
// and the terminal node-complete; edge-executed for edges leaving node N
// follows node-complete(N) and precedes node-start of the edge's target;
// workflow-complete is the last event of a run.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// node-start / node-output / node-complete
	NodeID string      `json:"nodeId,omitempty"`
	Chunk  string      `json:"chunk,omitempty"`
	Result *NodeResult `json:"result,omitempty"`

	// edge-executed
	EdgeID       string `json:"edgeId,omitempty"`
	SourceNodeID string `json:"sourceNodeId,omitempty"`

	// iteration-start / iteration-complete
	LoopID    string `json:"loopId,omitempty"`
	Iteration int    `json:"iteration,omitempty"`

	// iteration-complete / workflow-complete
	Success *bool  `json:"success,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Bool is a helper for the Success pointer field.
func Bool(b bool) *bool { return &b }

// EventEncoder writes events to a byte stream as newline-delimited JSON
// objects separated by a blank line.
type EventEncoder struct {
	w io.Writer
}

// NewEventEncoder creates an encoder over w.
func NewEventEncoder(w io.Writer) *EventEncoder {
	return &EventEncoder{w: w}
}

// Encode writes a single event followed by the blank-line separator.
func (e *EventEncoder) Encode(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if _, err := e.w.Write(append(data, '\n', '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}

// EventDecoder reads a blank-line separated event stream. It buffers across
// arbitrary chunk boundaries and tolerates a partial trailing event, which
// surfaces as io.EOF once the source closes.
type EventDecoder struct {
	r   *bufio.Reader
	buf bytes.Buffer
}

// NewEventDecoder creates a decoder over r.
func NewEventDecoder(r io.Reader) *EventDecoder {
	return &EventDecoder{r: bufio.NewReader(r)}
}

// Decode returns the next complete event. io.EOF signals a cleanly drained
// stream.
func (d *EventDecoder) Decode() (Event, error) {
	for {
		// A complete event is terminated by "\n\n" in the buffer.
		if ev, ok, err := d.takeBuffered(); ok || err != nil {
			return ev, err
		}

		line, err := d.r.ReadBytes('\n')
		d.buf.Write(line)
		if err != nil {
			if err == io.EOF && len(bytes.TrimSpace(d.buf.Bytes())) > 0 {
				// Trailing event without final separator.
				return d.parse(d.takeAll())
			}
			return Event{}, err
		}
	}
}

func (d *EventDecoder) takeBuffered() (Event, bool, error) {
	data := d.buf.Bytes()
	idx := bytes.Index(data, []byte("\n\n"))
	if idx < 0 {
		return Event{}, false, nil
	}
	frame := make([]byte, idx)
	copy(frame, data[:idx])
	d.buf.Next(idx + 2)
	if len(bytes.TrimSpace(frame)) == 0 {
		return Event{}, false, nil
	}
	ev, err := d.parse(frame)
	return ev, true, err
}

func (d *EventDecoder) takeAll() []byte {
	data := bytes.TrimSpace(d.buf.Bytes())
	d.buf.Reset()
	return data
}

func (d *EventDecoder) parse(frame []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(frame, &ev); err != nil {
		return Event{}, fmt.Errorf("malformed event frame: %w", err)
	}
	return ev, nil
}
