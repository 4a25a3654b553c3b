package storage

// PrefixDB is a namespace inside a shared DB. Every key is stored under the
// namespace prefix; callers only ever see their own logical keys.
type PrefixDB struct {
	inner  DB
	prefix []byte
}

// NewPrefixDB returns the namespace prefix of inner. A nil prefix addresses
// the whole database.
func NewPrefixDB(inner DB, prefix []byte) *PrefixDB {
	return &PrefixDB{inner: inner, prefix: append([]byte(nil), prefix...)}
}

// Key returns the key as stored in the underlying database. It lets a
// batch on one namespace write into a sibling namespace.
func (p *PrefixDB) Key(key []byte) []byte {
	return append(append(make([]byte, 0, len(p.prefix)+len(key)), p.prefix...), key...)
}

func (p *PrefixDB) Get(key []byte) ([]byte, error) { return p.inner.Get(p.Key(key)) }

func (p *PrefixDB) Put(key, value []byte) error { return p.inner.Put(p.Key(key), value) }

func (p *PrefixDB) Delete(key []byte) error { return p.inner.Delete(p.Key(key)) }

func (p *PrefixDB) Has(key []byte) (bool, error) { return p.inner.Has(p.Key(key)) }

// ForEach visits the namespace keys starting with prefix, namespace
// stripped.
func (p *PrefixDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	n := len(p.prefix)
	return p.inner.ForEach(p.Key(prefix), func(key, value []byte) error {
		return fn(key[n:], value)
	})
}

// DeleteAll empties the namespace in one batch and returns how many keys
// were removed.
func (p *PrefixDB) DeleteAll() (int, error) {
	var keys [][]byte
	if err := p.ForEach(nil, func(key, _ []byte) error {
		keys = append(keys, append([]byte(nil), key...))
		return nil
	}); err != nil {
		return 0, err
	}
	b := p.NewBatch()
	for _, k := range keys {
		if err := b.Delete(k); err != nil {
			return 0, err
		}
	}
	if err := b.Commit(); err != nil {
		return 0, err
	}
	return len(keys), nil
}

// Close does nothing; the shared DB owns the lifecycle.
func (p *PrefixDB) Close() error {
	return nil
}

// NewBatch returns a batch over the namespace. It is atomic when the shared
// DB is a Batcher and applied write by write otherwise.
func (p *PrefixDB) NewBatch() Batch {
	var inner Batch
	if batcher, ok := p.inner.(Batcher); ok {
		inner = batcher.NewBatch()
	} else {
		inner = &sequentialBatch{db: p.inner}
	}
	return &prefixBatch{ns: p, inner: inner}
}

type prefixBatch struct {
	ns    *PrefixDB
	inner Batch
}

func (b *prefixBatch) Put(key, value []byte) error { return b.inner.Put(b.ns.Key(key), value) }

func (b *prefixBatch) Delete(key []byte) error { return b.inner.Delete(b.ns.Key(key)) }

func (b *prefixBatch) Commit() error { return b.inner.Commit() }

// sequentialBatch buffers writes for a DB without batch support.
type sequentialBatch struct {
	db  DB
	ops []memoryOp
}

func (b *sequentialBatch) Put(key, value []byte) error {
	b.ops = append(b.ops, memoryOp{key: string(key), value: append([]byte{}, value...)})
	return nil
}

func (b *sequentialBatch) Delete(key []byte) error {
	b.ops = append(b.ops, memoryOp{key: string(key)})
	return nil
}

func (b *sequentialBatch) Commit() error {
	for _, op := range b.ops {
		var err error
		if op.value == nil {
			err = b.db.Delete([]byte(op.key))
		} else {
			err = b.db.Put([]byte(op.key), op.value)
		}
		if err != nil {
			return err
		}
	}
	b.ops = nil
	return nil
}
