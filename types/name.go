package types

// AccountName identifies a validator by a human-readable name. It is kept
// as a thin value type (rather than plumbing raw public keys everywhere)
// because votes and proposals carry it directly for debugging and because
// the validator-set lookup tables are keyed by it.
type AccountName struct {
	Name string
}

// NewAccountName creates an AccountName.
func NewAccountName(name string) AccountName {
	return AccountName{Name: name}
}

// IsAccountNameEmpty returns true if the name is unset.
func IsAccountNameEmpty(a AccountName) bool {
	return a.Name == ""
}

// AccountNameEqual compares two account names.
func AccountNameEqual(a, b AccountName) bool {
	return a.Name == b.Name
}

// CopyAccountName returns a copy of an AccountName. AccountName holds no
// pointers or slices, so this is a plain value copy; it exists so callers
// that deep-copy larger structures (NamedValidator, BlockHeader) have a
// single spot to call regardless of whether AccountName grows internal
// reference fields later.
func CopyAccountName(a AccountName) AccountName {
	return a
}
