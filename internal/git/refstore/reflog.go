package refstore

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gitlab.com/gitlab-org/gitaly-refs/internal/git"
	"gitlab.com/gitlab-org/gitaly-refs/internal/safe"
)

// ReflogEntry is a single line of a reference's log.
type ReflogEntry struct {
	OldOID    git.ObjectID
	NewOID    git.ObjectID
	Committer git.Signature
	Message   string
}

func (s *Store) logsDir() string {
	return filepath.Join(s.base, "logs")
}

// ReflogPath returns the path of the log of the named reference.
func (s *Store) ReflogPath(name git.ReferenceName) string {
	return filepath.Join(s.logsDir(), name.Path())
}

// shouldAutoCreateReflog mirrors Git's default of core.logAllRefUpdates for
// non-bare repositories.
func shouldAutoCreateReflog(name git.ReferenceName) bool {
	if name == "HEAD" {
		return true
	}

	for _, prefix := range []string{"refs/heads/", "refs/remotes/", "refs/notes/"} {
		if strings.HasPrefix(name.String(), prefix) {
			return true
		}
	}

	return false
}

// appendReflog records the transition of name from oldOID to newOID. Nothing
// is written if the reference has no log yet and wouldn't get one by default.
// The caller must hold the reference's lock.
func (s *Store) appendReflog(name git.ReferenceName, oldOID, newOID git.ObjectID, committer git.Signature, message string) (bool, error) {
	path := s.ReflogPath(name)

	if !shouldAutoCreateReflog(name) {
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				return false, nil
			}
			return false, err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, err
	}

	logFile, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return false, err
	}

	message = strings.NewReplacer("\n", " ", "\t", " ").Replace(strings.TrimSpace(message))
	line := fmt.Sprintf("%s %s %s\t%s\n", oldOID, newOID, committer, message)

	if _, err := logFile.WriteString(line); err != nil {
		_ = logFile.Close()
		return false, err
	}

	return true, logFile.Close()
}

// removeReflog deletes the log of name, if any, along with directories that
// became empty.
func (s *Store) removeReflog(name git.ReferenceName) error {
	path := s.ReflogPath(name)

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	safe.RemoveEmptyParents(path, s.logsDir())

	return nil
}

// ReadReflog returns the entries of the named reference's log, oldest first.
// A reference without log has no entries.
func (s *Store) ReadReflog(name git.ReferenceName) ([]ReflogEntry, error) {
	content, err := os.ReadFile(s.ReflogPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var entries []ReflogEntry

	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}

		entry, err := parseReflogLine(scanner.Text())
		if err != nil {
			return nil, fmt.Errorf("parsing reflog of %q: %w", name, err)
		}
		entries = append(entries, entry)
	}

	return entries, scanner.Err()
}

func parseReflogLine(line string) (ReflogEntry, error) {
	var entry ReflogEntry

	header, message := line, ""
	if tab := strings.IndexByte(line, '\t'); tab >= 0 {
		header, message = line[:tab], line[tab+1:]
	}
	entry.Message = message

	fields := strings.SplitN(header, " ", 3)
	if len(fields) != 3 {
		return ReflogEntry{}, fmt.Errorf("invalid reflog line %q", line)
	}

	var err error
	if entry.OldOID, err = git.NewObjectIDFromHex(fields[0]); err != nil {
		return ReflogEntry{}, err
	}
	if entry.NewOID, err = git.NewObjectIDFromHex(fields[1]); err != nil {
		return ReflogEntry{}, err
	}
	if entry.Committer, err = parseSignature(fields[2]); err != nil {
		return ReflogEntry{}, err
	}

	return entry, nil
}

// parseSignature parses "Name <email> 1234567890 +0100".
func parseSignature(s string) (git.Signature, error) {
	emailStart := strings.IndexByte(s, '<')
	emailEnd := strings.LastIndexByte(s, '>')
	if emailStart < 0 || emailEnd < emailStart {
		return git.Signature{}, fmt.Errorf("invalid signature %q", s)
	}

	dateFields := strings.Fields(s[emailEnd+1:])
	if len(dateFields) != 2 {
		return git.Signature{}, fmt.Errorf("invalid signature date in %q", s)
	}

	seconds, err := strconv.ParseInt(dateFields[0], 10, 64)
	if err != nil {
		return git.Signature{}, fmt.Errorf("invalid signature timestamp in %q: %w", s, err)
	}

	zone, err := time.Parse("-0700", dateFields[1])
	if err != nil {
		return git.Signature{}, fmt.Errorf("invalid signature timezone in %q: %w", s, err)
	}

	return git.Signature{
		Name:  strings.TrimSpace(s[:emailStart]),
		Email: s[emailStart+1 : emailEnd],
		When:  time.Unix(seconds, 0).In(zone.Location()),
	}, nil
}
