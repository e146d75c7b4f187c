package git

import (
	"errors"
	"fmt"
	"strings"
)

// ObjectIDHexLength is the length of the hex representation of a SHA1 object ID.
const ObjectIDHexLength = 40

var (
	// ZeroOID is the special value that Git uses to signal a ref or object does not exist.
	ZeroOID = ObjectID(strings.Repeat("0", ObjectIDHexLength))

	// ErrInvalidObjectID is returned in case an object ID's string
	// representation is not a valid one.
	ErrInvalidObjectID = errors.New("invalid object ID")
)

// ObjectID is the hex representation of an object's SHA1.
type ObjectID string

// NewObjectIDFromHex parses hex into an ObjectID. Abbreviated and upper-case
// object IDs are rejected with ErrInvalidObjectID.
func NewObjectIDFromHex(hex string) (ObjectID, error) {
	oid := ObjectID(hex)
	if err := oid.Validate(); err != nil {
		return "", err
	}
	return oid, nil
}

// Validate verifies that the object ID consists of exactly 40 lower-case
// hex digits.
func (oid ObjectID) Validate() error {
	if len(oid) != ObjectIDHexLength {
		return fmt.Errorf("%w: %q", ErrInvalidObjectID, string(oid))
	}

	for i := 0; i < len(oid); i++ {
		c := oid[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f') {
			return fmt.Errorf("%w: %q", ErrInvalidObjectID, string(oid))
		}
	}

	return nil
}

// String returns the hex representation of the ObjectID.
func (oid ObjectID) String() string {
	return string(oid)
}

// IsZeroOID tells whether the object ID is Git's null object ID.
func (oid ObjectID) IsZeroOID() bool {
	return oid == ZeroOID
}
