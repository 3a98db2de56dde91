package store

// EventEmitter broadcasts record changes to connected sessions without the
// services depending on the transport.
type EventEmitter interface {
	Emit(event any)
}

// NoopEmitter discards events.
type NoopEmitter struct{}

// Emit implements EventEmitter.
func (NoopEmitter) Emit(_ any) {}

// NewNoopEmitter creates an emitter for tests and tools.
func NewNoopEmitter() EventEmitter {
	return NoopEmitter{}
}
