package keyring

// RotationIndex is the round-robin cursor over (account, key) positions.
//
// Invariants, restored by normalize after every mutation of the pools:
//
//	0 <= Account < len(pools)            (Account == 0 when there are no pools)
//	0 <= Key < len(pools[Account].keys)  (Key == 0 when that account has no keys)
type RotationIndex struct {
	Account int
	Key     int
}

// Reset moves the cursor back to the first key of the first account.
func (ix *RotationIndex) Reset() {
	ix.Account = 0
	ix.Key = 0
}

// advance returns the position to hand out and moves the cursor one step
// forward in round-robin order. Accounts with no keys are skipped without
// counting as a step. ok is false when no account has any key.
func (ix *RotationIndex) advance(pools []*AccountPool) (account, key int, ok bool) {
	n := len(pools)
	if n == 0 {
		ix.Reset()
		return 0, 0, false
	}
	for step := 0; step < n; step++ {
		a := (ix.Account + step) % n
		keys := pools[a].keys
		if len(keys) == 0 {
			continue
		}
		k := 0
		if step == 0 && ix.Key < len(keys) {
			k = ix.Key
		}
		ix.Account, ix.Key = a, k+1
		if ix.Key >= len(keys) {
			ix.Key = 0
			ix.Account = (a + 1) % n
		}
		return a, k, true
	}
	ix.Reset()
	return 0, 0, false
}

// normalize clamps the cursor back into range after pools or key lists changed.
func (ix *RotationIndex) normalize(pools []*AccountPool) {
	n := len(pools)
	if n == 0 {
		ix.Reset()
		return
	}
	if ix.Account < 0 || ix.Account >= n {
		ix.Reset()
		return
	}
	if ix.Key < 0 {
		ix.Key = 0
	}
	if keys := pools[ix.Account].keys; ix.Key >= len(keys) {
		ix.Key = 0
		if len(keys) > 0 {
			ix.Account = (ix.Account + 1) % n
		}
	}
}

// removed adjusts the cursor after the pool at position i was deleted.
// pools is the slice after removal.
func (ix *RotationIndex) removed(i int, pools []*AccountPool) {
	switch {
	case ix.Account > i:
		ix.Account--
	case ix.Account == i:
		// The next account slid into position i; start at its first key.
		ix.Key = 0
	}
	if ix.Account >= len(pools) {
		ix.Account = 0
		ix.Key = 0
	}
	ix.normalize(pools)
}
