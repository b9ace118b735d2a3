package protocol

import "encoding/json"

// Kind discriminates envelope variants on the wire.
type Kind string

const (
	KindCommand         Kind = "command"
	KindCommandResponse Kind = "command-response"
	KindCommandComplete Kind = "command-complete"
	KindChunk           Kind = "chunk"
	KindError           Kind = "error"
)

// DataTypeString is the only chunk payload type.
const DataTypeString = "string"

// Envelope is the closed set of wire messages. Only this package implements it.
type Envelope interface {
	Kind() Kind
	sealed()
}

// Command asks the host to run Name. A nil Args is omitted from the wire.
type Command struct {
	Name string
	Args any
}

type CommandResponse struct {
	Context uint64
}

type CommandComplete struct {
	Context uint64
}

type Chunk struct {
	Context uint64
	Data    string
}

// Error reports a failure. Context is nil for connection-level failures.
type Error struct {
	Context *uint64
	Message string
}

func (*Command) Kind() Kind         { return KindCommand }
func (*CommandResponse) Kind() Kind { return KindCommandResponse }
func (*CommandComplete) Kind() Kind { return KindCommandComplete }
func (*Chunk) Kind() Kind           { return KindChunk }
func (*Error) Kind() Kind           { return KindError }

func (*Command) sealed()         {}
func (*CommandResponse) sealed() {}
func (*CommandComplete) sealed() {}
func (*Chunk) sealed()           {}
func (*Error) sealed()           {}

func (e *Error) Error() string {
	return e.Message
}

func NewCommand(name string, args any) *Command {
	return &Command{Name: name, Args: args}
}

func NewCommandResponse(context uint64) *CommandResponse {
	return &CommandResponse{Context: context}
}

func NewCommandComplete(context uint64) *CommandComplete {
	return &CommandComplete{Context: context}
}

func NewChunk(context uint64, data string) *Chunk {
	return &Chunk{Context: context, Data: data}
}

func (c *Command) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type Kind   `json:"type"`
		Name string `json:"name"`
		Args any    `json:"args,omitempty"`
	}{KindCommand, c.Name, c.Args})
}

func (c *CommandResponse) MarshalJSON() ([]byte, error) {
	return marshalContext(KindCommandResponse, c.Context)
}

func (c *CommandComplete) MarshalJSON() ([]byte, error) {
	return marshalContext(KindCommandComplete, c.Context)
}

func (c *Chunk) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type     Kind   `json:"type"`
		Context  uint64 `json:"context"`
		DataType string `json:"dataType"`
		Data     string `json:"data"`
	}{KindChunk, c.Context, DataTypeString, c.Data})
}

func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    Kind    `json:"type"`
		Context *uint64 `json:"context,omitempty"`
		Message string  `json:"message"`
	}{KindError, e.Context, e.Message})
}

func marshalContext(kind Kind, context uint64) ([]byte, error) {
	return json.Marshal(struct {
		Type    Kind   `json:"type"`
		Context uint64 `json:"context"`
	}{kind, context})
}
