package git

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrInvalidReferenceName is returned when a reference name does not satisfy
// the rules of git-check-ref-format(1).
var ErrInvalidReferenceName = errors.New("invalid reference name")

// ReferenceName represents the name of a git reference, e.g.
// "refs/heads/master". It must always contain a fully qualified reference or
// be a pseudo reference like "HEAD".
type ReferenceName string

// NewReferenceNameFromBranchName returns a new ReferenceName from a given
// branch name. Note that branch is treated as an unqualified branch name.
// This function will thus always prepend "refs/heads/".
func NewReferenceNameFromBranchName(branch string) ReferenceName {
	return ReferenceName("refs/heads/" + branch)
}

// String returns the string representation of the ReferenceName.
func (r ReferenceName) String() string {
	return string(r)
}

// Branch returns `true` and the branch name if the reference is a branch. E.g.
// if ReferenceName is "refs/heads/master", it will return "master". If it is
// not a branch, `false` is returned.
func (r ReferenceName) Branch() (string, bool) {
	if strings.HasPrefix(r.String(), "refs/heads/") {
		return r.String()[len("refs/heads/"):], true
	}
	return "", false
}

// Path returns the name as a relative, OS-specific path.
func (r ReferenceName) Path() string {
	return filepath.FromSlash(string(r))
}

// Validate checks the name against the rules of git-check-ref-format(1). Names
// outside of "refs/" are only accepted if they are pseudo references made of
// upper-case letters and underscores, like "HEAD" or "ORIG_HEAD".
func (r ReferenceName) Validate() error {
	name := string(r)

	invalid := func(reason string) error {
		return fmt.Errorf("%w: %q %s", ErrInvalidReferenceName, name, reason)
	}

	if name == "" {
		return invalid("is empty")
	}

	if !strings.HasPrefix(name, "refs/") {
		if !isPseudoReference(name) {
			return invalid("is neither below refs/ nor a pseudo reference")
		}
		return nil
	}

	if name == "@" {
		return invalid("is a single @")
	}
	if strings.HasSuffix(name, "/") || strings.HasSuffix(name, ".") {
		return invalid("has an invalid suffix")
	}
	if strings.Contains(name, "..") || strings.Contains(name, "@{") || strings.Contains(name, "//") {
		return invalid("contains an invalid sequence")
	}

	for i := 0; i < len(name); i++ {
		c := name[i]
		if c < 0x20 || c == 0x7f {
			return invalid("contains a control character")
		}
		switch c {
		case ' ', '~', '^', ':', '?', '*', '[', '\\':
			return invalid(fmt.Sprintf("contains %q", c))
		}
	}

	for _, component := range strings.Split(name, "/") {
		if strings.HasPrefix(component, ".") {
			return invalid("has a component starting with a dot")
		}
		if strings.HasSuffix(component, ".lock") {
			return invalid("has a component ending with .lock")
		}
	}

	return nil
}

func isPseudoReference(name string) bool {
	for i := 0; i < len(name); i++ {
		c := name[i]
		if !('A' <= c && c <= 'Z' || c == '_') {
			return false
		}
	}
	return true
}

// Target is the value a reference points to. A peeled target points to an
// object directly, while a symbolic target points to another reference.
type Target struct {
	// OID is the object a peeled target points to.
	OID ObjectID
	// Referent is the reference a symbolic target points to. It is empty for
	// peeled targets.
	Referent ReferenceName
}

// NewPeeledTarget creates a target pointing directly at an object.
func NewPeeledTarget(oid ObjectID) Target {
	return Target{OID: oid}
}

// NewSymbolicTarget creates a target redirecting to another reference.
func NewSymbolicTarget(referent ReferenceName) Target {
	return Target{Referent: referent}
}

// IsSymbolic tells whether the target redirects to another reference.
func (t Target) IsSymbolic() bool {
	return t.Referent != ""
}

// String returns the object ID for peeled targets and "ref: <referent>" for
// symbolic ones.
func (t Target) String() string {
	if t.IsSymbolic() {
		return "ref: " + t.Referent.String()
	}
	return t.OID.String()
}

// Reference represents a Git reference.
type Reference struct {
	// Name is the name of the reference
	Name ReferenceName
	// Target is what the reference points to.
	Target Target
}

// NewReference creates a direct reference to an object.
func NewReference(name ReferenceName, oid ObjectID) Reference {
	return Reference{
		Name:   name,
		Target: NewPeeledTarget(oid),
	}
}

// NewSymbolicReference creates a symbolic reference to another reference.
func NewSymbolicReference(name ReferenceName, referent ReferenceName) Reference {
	return Reference{
		Name:   name,
		Target: NewSymbolicTarget(referent),
	}
}
