package git

import (
	"fmt"
	"strings"
	"time"
)

// Signature represents a person and the time at which they performed an
// action, e.g. updating a reference.
type Signature struct {
	// Name of the person.
	Name string
	// Email of the person.
	Email string
	// When is the time of the action.
	When time.Time
}

// NewSignature creates a new signature. Angle brackets and newlines are
// stripped from name and email because they would break Git's encoding.
func NewSignature(name, email string, when time.Time) Signature {
	return Signature{
		Name:  sanitizeSignatureField(name),
		Email: sanitizeSignatureField(email),
		When:  when.Truncate(time.Second),
	}
}

// String formats the signature the way Git does in commits and reflogs:
// "Name <email> 1234567890 +0100".
func (s Signature) String() string {
	return fmt.Sprintf("%s <%s> %d %s", s.Name, s.Email, s.When.Unix(), s.When.Format("-0700"))
}

var signatureFieldReplacer = strings.NewReplacer("<", "", ">", "", "\n", "")

func sanitizeSignatureField(s string) string {
	return strings.TrimSpace(signatureFieldReplacer.Replace(s))
}
