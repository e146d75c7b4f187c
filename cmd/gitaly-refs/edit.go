package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gitlab.com/gitlab-org/gitaly-refs/internal/git"
)

const symbolicPrefix = "ref:"

// parseTarget parses either an object ID or "ref: <name>".
func parseTarget(value string) (git.Target, error) {
	if strings.HasPrefix(value, symbolicPrefix) {
		referent := git.ReferenceName(strings.TrimSpace(strings.TrimPrefix(value, symbolicPrefix)))
		if err := referent.Validate(); err != nil {
			return git.Target{}, err
		}
		return git.NewSymbolicTarget(referent), nil
	}

	oid, err := git.NewObjectIDFromHex(value)
	if err != nil {
		return git.Target{}, err
	}
	return git.NewPeeledTarget(oid), nil
}

// parseOptionalTarget parses value unless it is empty, in which case nil is
// returned.
func parseOptionalTarget(value string) (*git.Target, error) {
	if value == "" {
		return nil, nil
	}

	target, err := parseTarget(value)
	if err != nil {
		return nil, err
	}
	return &target, nil
}

func formatOptionalTarget(target *git.Target) string {
	if target == nil {
		return ""
	}
	return target.String()
}

// editRequest is the JSON representation of a single edit, as read by the
// apply subcommand.
type editRequest struct {
	Ref        string `json:"ref,omitempty"`
	Branch     string `json:"branch,omitempty"`
	Old        string `json:"old,omitempty"`
	New        string `json:"new,omitempty"`
	Delete     bool   `json:"delete,omitempty"`
	ReflogOnly bool   `json:"reflog_only,omitempty"`
	Message    string `json:"message,omitempty"`
}

// referenceName returns the edited reference, which is either given fully
// qualified or as the short name of a branch.
func (r editRequest) referenceName() (git.ReferenceName, error) {
	switch {
	case r.Ref != "" && r.Branch != "":
		return "", fmt.Errorf("reference %q and branch %q are mutually exclusive", r.Ref, r.Branch)
	case r.Branch != "":
		return git.NewReferenceNameFromBranchName(r.Branch), nil
	case r.Ref != "":
		return git.ReferenceName(r.Ref), nil
	default:
		return "", fmt.Errorf("missing reference name")
	}
}

func (r editRequest) refEdit() (git.RefEdit, error) {
	name, err := r.referenceName()
	if err != nil {
		return git.RefEdit{}, err
	}

	previous, err := parseOptionalTarget(r.Old)
	if err != nil {
		return git.RefEdit{}, fmt.Errorf("old value of %q: %w", name, err)
	}

	refLog := git.RefLogAndReference
	if r.ReflogOnly {
		refLog = git.RefLogOnly
	}

	if r.Delete {
		if r.New != "" {
			return git.RefEdit{}, fmt.Errorf("deletion of %q must not have a new value", name)
		}

		return git.RefEdit{
			Name:   name,
			Change: git.Delete{Previous: previous, Log: refLog},
		}, nil
	}

	if r.New == "" {
		return git.RefEdit{}, fmt.Errorf("update of %q is missing a new value", name)
	}

	target, err := parseTarget(r.New)
	if err != nil {
		return git.RefEdit{}, fmt.Errorf("new value of %q: %w", name, err)
	}

	return git.RefEdit{
		Name:   name,
		Change: git.Update{Previous: previous, New: target, Log: refLog, Message: r.Message},
	}, nil
}

// editResult is the JSON representation of an applied edit.
type editResult struct {
	Ref    string `json:"ref"`
	Old    string `json:"old,omitempty"`
	New    string `json:"new,omitempty"`
	Delete bool   `json:"delete,omitempty"`
}

func writeEdits(w io.Writer, edits []git.RefEdit) error {
	encoder := json.NewEncoder(w)

	for _, edit := range edits {
		result := editResult{
			Ref: edit.Name.String(),
			Old: formatOptionalTarget(edit.Change.PreviousValue()),
		}

		switch change := edit.Change.(type) {
		case git.Update:
			result.New = change.New.String()
		case git.Delete:
			result.Delete = true
		}

		if err := encoder.Encode(result); err != nil {
			return err
		}
	}

	return nil
}
