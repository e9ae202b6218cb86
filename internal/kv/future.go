package kv

// TxVersion is the 10-byte transaction version assigned at commit time:
// an 8-byte big-endian global commit sequence followed by a 2-byte batch
// order (always zero on a single node). It is strictly increasing across
// committed transactions.
type TxVersion [10]byte

// VersionFuture resolves to the transaction's commit version. It completes
// only once the transaction has durably committed; reading it earlier fails
// with ErrUnresolved.
type VersionFuture struct {
	done chan struct{}
	v    TxVersion
	err  error
}

func newVersionFuture() *VersionFuture {
	return &VersionFuture{done: make(chan struct{})}
}

func (f *VersionFuture) resolve(v TxVersion, err error) {
	f.v = v
	f.err = err
	close(f.done)
}

// Get blocks until the future resolves and returns the commit version.
func (f *VersionFuture) Get() (TxVersion, error) {
	<-f.done
	return f.v, f.err
}

// TryGet returns the commit version if resolved, ErrUnresolved otherwise.
func (f *VersionFuture) TryGet() (TxVersion, error) {
	select {
	case <-f.done:
		return f.v, f.err
	default:
		return TxVersion{}, ErrUnresolved
	}
}
