package refstore

import (
	"bytes"
	"errors"
	"fmt"

	"gitlab.com/gitlab-org/gitaly-refs/internal/git"
)

const symbolicPrefix = "ref: "

// ErrMalformedReference is returned when reference content is neither an
// object ID nor a symbolic reference.
var ErrMalformedReference = errors.New("malformed reference")

// DecodeReference parses the content of a loose reference file. A single
// trailing newline is accepted as Git writes one.
func DecodeReference(name git.ReferenceName, content []byte) (git.Reference, error) {
	content = bytes.TrimSuffix(content, []byte("\n"))

	if bytes.HasPrefix(content, []byte(symbolicPrefix)) {
		referent := git.ReferenceName(bytes.TrimSpace(content[len(symbolicPrefix):]))
		if err := referent.Validate(); err != nil {
			return git.Reference{}, fmt.Errorf("%w: %v", ErrMalformedReference, err)
		}
		return git.NewSymbolicReference(name, referent), nil
	}

	oid, err := git.NewObjectIDFromHex(string(content))
	if err != nil {
		return git.Reference{}, fmt.Errorf("%w: %q", ErrMalformedReference, content)
	}

	return git.NewReference(name, oid), nil
}

// EncodeTarget returns the on-disk representation of a target: the hex object
// ID for peeled targets and "ref: " followed by the referent for symbolic ones.
// No trailing newline is written.
func EncodeTarget(target git.Target) []byte {
	if target.IsSymbolic() {
		return []byte(symbolicPrefix + target.Referent.String())
	}
	return []byte(target.OID.String())
}
