package wire

import "encoding/json"

// Existing wall processor firmware answers queries in two shapes: the
// nested one puts fields under "result", the flattened one puts them
// beside the response id. Decoding tries the primary (nested) shape
// first and falls back to the secondary (flattened) one; callers decide
// whether an absent field is an error or an empty default.

// ResultField unmarshals the named field of a response into out. It
// reports whether the field was present in either shape. A field that
// is present but fails to unmarshal returns an error.
func ResultField(msg *Message, key string, out interface{}) (bool, error) {
	if len(msg.Result) > 0 {
		found, err := objectField(msg.Result, key, out)
		if err != nil || found {
			return found, err
		}
	}
	if len(msg.Raw) > 0 {
		return objectField(msg.Raw, key, out)
	}
	return false, nil
}

func objectField(obj json.RawMessage, key string, out interface{}) (bool, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(obj, &fields); err != nil {
		// A non-object result (e.g. a bare string) has no fields.
		return false, nil
	}
	raw, ok := fields[key]
	if !ok || string(raw) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, err
	}
	return true, nil
}
