// Package types defines the protocol constants, name rules and error codes
// shared by every bitname package.
package types

// Protocol constants. These are baked into committed scripts; changing any
// of them strands funds already locked under the old values.
const (
	// MaxNameLength is the longest registrable name, in bytes.
	MaxNameLength = 64

	// NonceSize is the length of the commitment nonce.
	NonceSize = 32

	// MaxExpiryHeight mirrors Bitcoin's block-height/timestamp locktime split.
	MaxExpiryHeight = 500_000_000

	// CommitMaturity is the relative delay, in blocks, between a commit
	// confirming and its reveal being spendable.
	CommitMaturity = 6

	// CommitRecordHeaderSize is nonce(32) + expiry(4) + nameLen(1).
	CommitRecordHeaderSize = NonceSize + 4 + 1
)

// Output positions fixed by the protocol.
const (
	CommitNonceOutput   = 0
	CommitServiceOutput = 1
	CommitEscrowOutput  = 2
	CommitChangeOutput  = 3

	LockServiceOutput = 0
	LockLockedOutput  = 1
	LockChangeOutput  = 2
)

// IsNameChar reports whether c may appear in a name: [A-Za-z0-9_.~-].
func IsNameChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '_', c == '-', c == '.', c == '~':
		return true
	}
	return false
}

// ValidateName checks length first, then charset. Empty names are
// rejected: a record without a name is shorter than Deserialize accepts.
func ValidateName(name string) error {
	if name == "" {
		return ErrEmptyName
	}
	if len(name) > MaxNameLength {
		return Errorf(CodeNameTooLong, "name is too long: %d bytes, max %d", len(name), MaxNameLength)
	}
	for i := 0; i < len(name); i++ {
		if !IsNameChar(name[i]) {
			return Errorf(CodeInvalidNameCharacters, "invalid character %q in name at offset %d", name[i], i)
		}
	}
	return nil
}

// ValidateExpiryHeight rejects heights past the locktime split.
func ValidateExpiryHeight(height uint32) error {
	if height > MaxExpiryHeight {
		return Errorf(CodeLocktimeRange, "locktime must be at most %d blocks, got %d", MaxExpiryHeight, height)
	}
	return nil
}
