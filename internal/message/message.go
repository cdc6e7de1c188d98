// Package message defines the immutable envelope carried between modules
// by the broker: a string property bag plus an opaque content byte slice.
package message

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// Message is an immutable envelope. Construct one with New; once built, a
// Message's properties and content must not be mutated by callers — Clone
// gives every holder a value it can treat as its own.
type Message struct {
	properties map[string]string
	content    []byte
}

// New builds a Message from a property bag and content bytes. The maps and
// slices passed in are copied so the caller's originals stay mutable.
func New(properties map[string]string, content []byte) *Message {
	props := make(map[string]string, len(properties))
	for k, v := range properties {
		props[k] = v
	}
	buf := make([]byte, len(content))
	copy(buf, content)
	return &Message{properties: props, content: buf}
}

// Property looks up a single property by name.
func (m *Message) Property(name string) (string, bool) {
	v, ok := m.properties[name]
	return v, ok
}

// Properties returns a copy of the full property bag.
func (m *Message) Properties() map[string]string {
	out := make(map[string]string, len(m.properties))
	for k, v := range m.properties {
		out[k] = v
	}
	return out
}

// Content returns the message's opaque payload. Callers must not mutate the
// returned slice; it may be shared with other clones of this Message.
func (m *Message) Content() []byte {
	return m.content
}

// Clone returns a Message sharing this one's underlying buffers. Clone is
// cheap: it does not copy content or properties, since both are treated as
// read-only once a Message is built.
func (m *Message) Clone() *Message {
	return &Message{properties: m.properties, content: m.content}
}

// Equal reports whether two messages have identical properties and content.
// Used by tests asserting the message round-trip law and broker delivery.
func (m *Message) Equal(other *Message) bool {
	if other == nil {
		return false
	}
	if len(m.properties) != len(other.properties) {
		return false
	}
	for k, v := range m.properties {
		if ov, ok := other.properties[k]; !ok || ov != v {
			return false
		}
	}
	return bytes.Equal(m.content, other.content)
}

// wireMessage is the gob-serializable shape of a Message. gob is used here
// (rather than JSON) because message content is opaque binary, not text;
// spec.md leaves the serialization format opaque to the broker so any
// round-trippable codec satisfies it — gob is the stdlib's binary codec and
// needs no schema, matching the "format is opaque to the broker" rule.
type wireMessage struct {
	Properties map[string]string
	Content    []byte
}

// Marshal serializes a Message to a byte slice that Unmarshal can parse back
// into an equal Message (the round-trip law of spec.md §8).
func (m *Message) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(wireMessage{Properties: m.properties, Content: m.content}); err != nil {
		return nil, fmt.Errorf("message: marshal: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal parses bytes produced by Marshal back into a Message.
func Unmarshal(data []byte) (*Message, error) {
	var wm wireMessage
	dec := gob.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&wm); err != nil {
		return nil, fmt.Errorf("message: unmarshal: %w", err)
	}
	return New(wm.Properties, wm.Content), nil
}
