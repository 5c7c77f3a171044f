package engine

// Durability persists inserts before the coordinator applies them.
//
// LogInsert must return only once the record is as durable as the
// implementation promises; the coordinator makes the vector visible after a
// nil return. The persistence manager satisfies this interface.
type Durability interface {
	LogInsert(id string, vector []float32) error

	// Close releases any resources held by the durability layer.
	Close() error
}

// NoopDurability keeps everything in memory.
type NoopDurability struct{}

func (NoopDurability) LogInsert(string, []float32) error { return nil }
func (NoopDurability) Close() error                      { return nil }

// DurabilityFunc adapts a function to Durability. Close is a no-op.
type DurabilityFunc func(id string, vector []float32) error

func (f DurabilityFunc) LogInsert(id string, vector []float32) error { return f(id, vector) }
func (DurabilityFunc) Close() error                                    { return nil }
