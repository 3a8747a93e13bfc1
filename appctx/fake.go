package appctx

// Fake returns a scripted snapshot.
type Fake struct {
	Snap Snapshot
	Err  error
}

func (f *Fake) Current() (Snapshot, error) { return f.Snap, f.Err }
