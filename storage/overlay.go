package storage

// Overlay buffers writes on top of a base Database so a whole batch of
// mutations can be committed or discarded as one unit. Reads observe buffered
// writes first and fall through to the base otherwise.
//
// Overlay is not safe for concurrent use; callers are expected to serialise
// access while a batch is open.
type Overlay struct {
	base    Database
	pending map[string][]byte
}

func NewOverlay(base Database) *Overlay {
	return &Overlay{base: base, pending: make(map[string][]byte)}
}

func (o *Overlay) Put(key []byte, value []byte) error {
	buf := make([]byte, len(value))
	copy(buf, value)
	o.pending[string(key)] = buf
	return nil
}

func (o *Overlay) Get(key []byte) ([]byte, error) {
	if value, ok := o.pending[string(key)]; ok {
		out := make([]byte, len(value))
		copy(out, value)
		return out, nil
	}
	return o.base.Get(key)
}

func (o *Overlay) Has(key []byte) (bool, error) {
	if _, ok := o.pending[string(key)]; ok {
		return true, nil
	}
	return o.base.Has(key)
}

// Commit flushes every buffered write to the base store. The overlay is
// reusable afterwards.
func (o *Overlay) Commit() error {
	for key, value := range o.pending {
		if err := o.base.Put([]byte(key), value); err != nil {
			return err
		}
	}
	o.pending = make(map[string][]byte)
	return nil
}

// Discard drops all buffered writes without touching the base store.
func (o *Overlay) Discard() {
	o.pending = make(map[string][]byte)
}

// Close satisfies the Database interface; the base store stays open.
func (o *Overlay) Close() {}
