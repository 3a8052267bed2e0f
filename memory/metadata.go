package memory

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var errMetadataNotObject = errors.New("metadata must be a JSON object")

// Metadata is free-form caller context attached to a record.
//
// It is kept as raw JSON so key order survives storage round trips. Reads go
// through gjson, writes through sjson; new keys are appended at the end.
// The zero value is an empty object.
type Metadata struct {
	raw []byte
}

// ParseMetadata validates data as a JSON object. Empty input and null give
// an empty Metadata.
func ParseMetadata(data []byte) (Metadata, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Metadata{}, nil
	}
	if !gjson.ValidBytes(trimmed) || trimmed[0] != '{' {
		return Metadata{}, errMetadataNotObject
	}
	return Metadata{raw: append([]byte(nil), trimmed...)}, nil
}

// MetadataFromMap builds Metadata from a Go map. Go maps carry no order, so
// keys are written in sorted order.
func MetadataFromMap(values map[string]any) (Metadata, error) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	md := Metadata{}
	for _, k := range keys {
		var err error
		md, err = md.Set(k, values[k])
		if err != nil {
			return Metadata{}, err
		}
	}
	return md, nil
}

// Set returns a copy of m with key set to value. Existing keys keep their
// position.
func (m Metadata) Set(key string, value any) (Metadata, error) {
	if key == "" {
		return m, fmt.Errorf("metadata key is empty")
	}

	base := []byte("{}")
	if len(m.raw) > 0 {
		base = append([]byte(nil), m.raw...)
	}

	var (
		out []byte
		err error
	)
	switch v := value.(type) {
	case json.RawMessage:
		out, err = sjson.SetRawBytes(base, gjson.Escape(key), v)
	default:
		out, err = sjson.SetBytes(base, gjson.Escape(key), v)
	}
	if err != nil {
		return m, fmt.Errorf("set metadata %q: %w", key, err)
	}
	return Metadata{raw: out}, nil
}

// Get returns the decoded value stored under key.
func (m Metadata) Get(key string) (any, bool) {
	if len(m.raw) == 0 {
		return nil, false
	}
	r := gjson.GetBytes(m.raw, gjson.Escape(key))
	if !r.Exists() {
		return nil, false
	}
	return r.Value(), true
}

// Keys returns the keys in document order.
func (m Metadata) Keys() []string {
	if len(m.raw) == 0 {
		return nil
	}
	var keys []string
	gjson.ParseBytes(m.raw).ForEach(func(k, _ gjson.Result) bool {
		keys = append(keys, k.String())
		return true
	})
	return keys
}

// Len returns the number of top-level keys.
func (m Metadata) Len() int {
	return len(m.Keys())
}

// Raw returns the JSON encoding of m.
func (m Metadata) Raw() json.RawMessage {
	if len(m.raw) == 0 {
		return json.RawMessage("{}")
	}
	return append(json.RawMessage(nil), m.raw...)
}

func (m Metadata) MarshalJSON() ([]byte, error) {
	return m.Raw(), nil
}

func (m *Metadata) UnmarshalJSON(data []byte) error {
	parsed, err := ParseMetadata(data)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
