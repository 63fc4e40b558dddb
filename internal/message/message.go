package message

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Content is the closed set of payload shapes a message can carry. The
// concrete kinds are Text, Number, Bool, Mapping and List. Each kind
// marshals as a {"kind", "value"} envelope so payloads keep their type
// across a JSON round trip.
type Content interface {
	isContent()
}

// Text is a plain string payload.
type Text string

// Number is a numeric payload. Integers and floats share this kind.
type Number float64

// Bool is a boolean payload.
type Bool bool

// Mapping is a string-keyed composite payload.
type Mapping map[string]Content

// List is an ordered composite payload.
type List []Content

func (Text) isContent()    {}
func (Number) isContent()  {}
func (Bool) isContent()    {}
func (Mapping) isContent() {}
func (List) isContent()    {}

const (
	kindText   = "text"
	kindNumber = "number"
	kindBool   = "bool"
	kindMap    = "map"
	kindList   = "list"
)

type envelope struct {
	Kind  string          `json:"kind"`
	Value json.RawMessage `json:"value"`
}

func marshalEnvelope(kind string, v interface{}) ([]byte, error) {
	value, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Kind: kind, Value: value})
}

func (t Text) MarshalJSON() ([]byte, error) { return marshalEnvelope(kindText, string(t)) }

func (n Number) MarshalJSON() ([]byte, error) { return marshalEnvelope(kindNumber, float64(n)) }

func (b Bool) MarshalJSON() ([]byte, error) { return marshalEnvelope(kindBool, bool(b)) }

func (m Mapping) MarshalJSON() ([]byte, error) { return marshalEnvelope(kindMap, map[string]Content(m)) }

func (l List) MarshalJSON() ([]byte, error) { return marshalEnvelope(kindList, []Content(l)) }

// DecodeContent parses a typed envelope back into its Content kind.
func DecodeContent(data []byte) (Content, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}
	switch env.Kind {
	case kindText:
		var s string
		if err := json.Unmarshal(env.Value, &s); err != nil {
			return nil, fmt.Errorf("decode text content: %w", err)
		}
		return Text(s), nil
	case kindNumber:
		var f float64
		if err := json.Unmarshal(env.Value, &f); err != nil {
			return nil, fmt.Errorf("decode number content: %w", err)
		}
		return Number(f), nil
	case kindBool:
		var b bool
		if err := json.Unmarshal(env.Value, &b); err != nil {
			return nil, fmt.Errorf("decode bool content: %w", err)
		}
		return Bool(b), nil
	case kindMap:
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(env.Value, &raw); err != nil {
			return nil, fmt.Errorf("decode map content: %w", err)
		}
		m := make(Mapping, len(raw))
		for k, v := range raw {
			c, err := DecodeContent(v)
			if err != nil {
				return nil, err
			}
			m[k] = c
		}
		return m, nil
	case kindList:
		var raw []json.RawMessage
		if err := json.Unmarshal(env.Value, &raw); err != nil {
			return nil, fmt.Errorf("decode list content: %w", err)
		}
		l := make(List, 0, len(raw))
		for _, v := range raw {
			c, err := DecodeContent(v)
			if err != nil {
				return nil, err
			}
			l = append(l, c)
		}
		return l, nil
	default:
		return nil, fmt.Errorf("unknown content kind %q", env.Kind)
	}
}

// FromJSON converts plain JSON into Content, inferring the kind from the
// JSON type: strings become Text, numbers Number, booleans Bool, objects
// Mapping and arrays List. Null carries no content and is rejected.
func FromJSON(data []byte) (Content, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("parse content: %w", err)
	}
	return fromValue(v)
}

func fromValue(v interface{}) (Content, error) {
	switch x := v.(type) {
	case string:
		return Text(x), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return nil, fmt.Errorf("parse content number: %w", err)
		}
		return Number(f), nil
	case bool:
		return Bool(x), nil
	case map[string]interface{}:
		m := make(Mapping, len(x))
		for k, val := range x {
			c, err := fromValue(val)
			if err != nil {
				return nil, err
			}
			m[k] = c
		}
		return m, nil
	case []interface{}:
		l := make(List, 0, len(x))
		for _, val := range x {
			c, err := fromValue(val)
			if err != nil {
				return nil, err
			}
			l = append(l, c)
		}
		return l, nil
	case nil:
		return nil, fmt.Errorf("null content is not allowed")
	default:
		return nil, fmt.Errorf("unsupported content type %T", v)
	}
}

// Plain unwraps content into plain Go values, dropping the envelope.
func Plain(c Content) interface{} {
	switch x := c.(type) {
	case Text:
		return string(x)
	case Number:
		return float64(x)
	case Bool:
		return bool(x)
	case Mapping:
		m := make(map[string]interface{}, len(x))
		for k, v := range x {
			m[k] = Plain(v)
		}
		return m
	case List:
		l := make([]interface{}, 0, len(x))
		for _, v := range x {
			l = append(l, Plain(v))
		}
		return l
	default:
		return nil
	}
}

// Render formats content for human-facing output. Text renders bare;
// everything else renders as compact plain JSON.
func Render(c Content) string {
	if t, ok := c.(Text); ok {
		return string(t)
	}
	data, err := json.Marshal(Plain(c))
	if err != nil {
		return fmt.Sprintf("%v", Plain(c))
	}
	return string(data)
}

// Message is one unit of communication between agents.
type Message struct {
	ID        uuid.UUID          `json:"id"`
	Sender    string             `json:"sender"`
	Receiver  string             `json:"receiver"`
	Content   Content            `json:"content"`
	Timestamp time.Time          `json:"timestamp"`
	Metadata  map[string]Content `json:"metadata"`
}

// New builds a message with a fresh id, a UTC timestamp and empty metadata.
func New(sender, receiver string, content Content) *Message {
	return &Message{
		ID:        uuid.New(),
		Sender:    sender,
		Receiver:  receiver,
		Content:   content,
		Timestamp: time.Now().UTC(),
		Metadata:  make(map[string]Content),
	}
}

// WithMetadata copies md into the message metadata and returns the
// message, so construction can be chained. A nil map is a no-op.
func (m *Message) WithMetadata(md map[string]Content) *Message {
	for k, v := range md {
		m.Metadata[k] = v
	}
	return m
}

// UnmarshalJSON restores the typed content and metadata envelopes.
func (m *Message) UnmarshalJSON(data []byte) error {
	var aux struct {
		ID        uuid.UUID                  `json:"id"`
		Sender    string                     `json:"sender"`
		Receiver  string                     `json:"receiver"`
		Content   json.RawMessage            `json:"content"`
		Timestamp time.Time                  `json:"timestamp"`
		Metadata  map[string]json.RawMessage `json:"metadata"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	m.ID = aux.ID
	m.Sender = aux.Sender
	m.Receiver = aux.Receiver
	m.Timestamp = aux.Timestamp
	if len(aux.Content) > 0 {
		c, err := DecodeContent(aux.Content)
		if err != nil {
			return err
		}
		m.Content = c
	} else {
		m.Content = nil
	}
	m.Metadata = make(map[string]Content, len(aux.Metadata))
	for k, v := range aux.Metadata {
		c, err := DecodeContent(v)
		if err != nil {
			return err
		}
		m.Metadata[k] = c
	}
	return nil
}
