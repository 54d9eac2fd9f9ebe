package sdk

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventStreamRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEventEncoder(&buf)

	sent := []Event{
		{Type: EventNodeStart, NodeID: "a"},
		{Type: EventNodeOutput, NodeID: "a", Chunk: "hello\nworld"},
		{Type: EventNodeComplete, NodeID: "a", Result: &NodeResult{NodeID: "a", Status: StatusCompleted}},
		{Type: EventWorkflowComplete, Success: Bool(true)},
	}
	for _, ev := range sent {
		require.NoError(t, enc.Encode(ev))
	}

	dec := NewEventDecoder(&buf)
	var got []Event
	for {
		ev, err := dec.Decode()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, ev)
	}

	require.Len(t, got, len(sent))
	assert.Equal(t, EventNodeOutput, got[1].Type)
	assert.Equal(t, "hello\nworld", got[1].Chunk)
	require.NotNil(t, got[2].Result)
	assert.Equal(t, StatusCompleted, got[2].Result.Status)
	require.NotNil(t, got[3].Success)
	assert.True(t, *got[3].Success)
}

// chunkReader delivers the stream in tiny fragments so frames always split
// across reads.
type chunkReader struct {
	data []byte
	size int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := r.size
	if n > len(r.data) {
		n = len(r.data)
	}
	copy(p, r.data[:n])
	r.data = r.data[n:]
	return n, nil
}

func TestEventDecoderAcrossChunkBoundaries(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEventEncoder(&buf)
	for _, id := range []string{"one", "two", "three"} {
		require.NoError(t, enc.Encode(Event{Type: EventNodeStart, NodeID: id}))
	}

	dec := NewEventDecoder(&chunkReader{data: buf.Bytes(), size: 3})
	var ids []string
	for {
		ev, err := dec.Decode()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		ids = append(ids, ev.NodeID)
	}
	assert.Equal(t, []string{"one", "two", "three"}, ids)
}

func TestEventDecoderPartialTrailingEvent(t *testing.T) {
	// No final separator: the trailing event still decodes.
	stream := `{"type":"node-start","timestamp":"2026-08-24T10:00:00Z","nodeId":"a"}` + "\n\n" +
		`{"type":"workflow-complete","timestamp":"2026-08-24T10:00:01Z","success":true}`

	dec := NewEventDecoder(strings.NewReader(stream))

	first, err := dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, EventNodeStart, first.Type)

	second, err := dec.Decode()
	require.NoError(t, err)
	assert.Equal(t, EventWorkflowComplete, second.Type)

	_, err = dec.Decode()
	assert.Equal(t, io.EOF, err)
}

func TestEventDecoderMalformedFrame(t *testing.T) {
	dec := NewEventDecoder(strings.NewReader("{not json}\n\n"))
	_, err := dec.Decode()
	require.Error(t, err)
}
