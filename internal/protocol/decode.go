package protocol

import (
	"encoding/json"
	"fmt"
)

// Decode parses one JSON document into an envelope.
func Decode(raw []byte) (Envelope, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	return DecodeValue(v)
}

// DecodeValue narrows an already decoded JSON value into an envelope. Guards
// are pure; an object without a string type fails the type guard, and any
// other value that matches no variant yields ErrUnknownMessage.
func DecodeValue(v any) (Envelope, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, ErrUnknownMessage
	}
	kind, err := requireString(obj, "type")
	if err != nil {
		return nil, err
	}
	switch Kind(kind) {
	case KindCommand:
		return decodeCommand(obj)
	case KindCommandResponse:
		c, err := requireContext(obj, "context")
		if err != nil {
			return nil, err
		}
		return NewCommandResponse(c), nil
	case KindCommandComplete:
		c, err := requireContext(obj, "context")
		if err != nil {
			return nil, err
		}
		return NewCommandComplete(c), nil
	case KindChunk:
		return decodeChunk(obj)
	case KindError:
		return decodeError(obj)
	default:
		return nil, ErrUnknownMessage
	}
}

func decodeCommand(obj map[string]any) (*Command, error) {
	name, err := requireString(obj, "name")
	if err != nil {
		return nil, err
	}
	return NewCommand(name, obj["args"]), nil
}

func decodeChunk(obj map[string]any) (*Chunk, error) {
	c, err := requireContext(obj, "context")
	if err != nil {
		return nil, err
	}
	if err := requireLiteral(obj, "dataType", DataTypeString); err != nil {
		return nil, err
	}
	data, err := requireString(obj, "data")
	if err != nil {
		return nil, err
	}
	return NewChunk(c, data), nil
}

func decodeError(obj map[string]any) (*Error, error) {
	c, err := optionalContext(obj, "context")
	if err != nil {
		return nil, err
	}
	message, err := requireString(obj, "message")
	if err != nil {
		return nil, err
	}
	return &Error{Context: c, Message: message}, nil
}
