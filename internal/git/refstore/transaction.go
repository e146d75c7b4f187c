package refstore

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/logrus/ctxlogrus"
	"github.com/opentracing/opentracing-go"
	"github.com/sirupsen/logrus"
	"gitlab.com/gitlab-org/gitaly-refs/internal/git"
	"gitlab.com/gitlab-org/gitaly-refs/internal/safe"
)

// State is the lifecycle state of a Transaction.
type State int

const (
	// StateOpen is the state of a transaction which holds no locks yet.
	StateOpen = State(iota)
	// StatePrepared is the state of a transaction whose edits are all locked
	// and staged.
	StatePrepared
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StatePrepared:
		return "prepared"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// lock is held by an edit between prepare and commit. Releasing it undoes
// everything the lock has staged.
type lock interface {
	release() error
}

type markerLock struct{ *safe.Marker }

func (l markerLock) release() error { return l.Release() }

type writerLock struct{ *safe.LockingFileWriter }

func (l writerLock) release() error { return l.Close() }

type edit struct {
	// requested is the edit as handed in by the caller. It is restored when
	// prepare fails.
	requested git.RefEdit
	update    git.RefEdit
	lock      lock
	// parentIndex points to the edit of the symbolic reference this edit was
	// derived from. Symbolic references are not followed when preparing, so
	// it is always nil for now.
	parentIndex *int
}

func (e *edit) takeLock(msg string) lock {
	if e.lock == nil {
		panic(msg)
	}
	l := e.lock
	e.lock = nil
	return l
}

// Transaction applies a batch of reference edits. It is created via
// Store.Transaction and must either be committed or closed.
//
// Prepare locks every reference and stages its new value, which can still be
// rolled back perfectly by calling Close. Commit makes all staged changes
// visible, first all updates and only then all deletions so that objects which
// remain reachable through an updated reference are never unreferenced.
//
// A Transaction is not safe for concurrent use.
type Transaction struct {
	id        string
	store     *Store
	updates   []edit
	state     State
	done      bool
	lockMode  safe.AcquireMode
	committer *git.Signature
}

// TransactionOption configures a Transaction.
type TransactionOption func(*Transaction)

// WithCommitter sets the identity recorded in reflog entries. Without a
// committer no reflog entries are written.
func WithCommitter(committer git.Signature) TransactionOption {
	return func(tx *Transaction) {
		tx.committer = &committer
	}
}

// Transaction opens a transaction with the given edits, using mode whenever a
// lock cannot be obtained right away. It does not touch the filesystem.
func (s *Store) Transaction(edits []git.RefEdit, mode safe.AcquireMode, opts ...TransactionOption) *Transaction {
	tx := &Transaction{
		id:       uuid.New().String(),
		store:    s,
		updates:  make([]edit, 0, len(edits)),
		state:    StateOpen,
		lockMode: mode,
	}

	for _, update := range edits {
		tx.updates = append(tx.updates, edit{requested: update, update: update})
	}

	for _, opt := range opts {
		opt(tx)
	}

	return tx
}

// ID returns the identifier the transaction logs and traces with.
func (tx *Transaction) ID() string {
	return tx.id
}

// State returns the lifecycle state of the transaction.
func (tx *Transaction) State() State {
	return tx.state
}

func (tx *Transaction) requestedEdits() git.RefEdits {
	edits := make(git.RefEdits, 0, len(tx.updates))
	for _, e := range tx.updates {
		edits = append(edits, e.requested)
	}
	return edits
}

// Edits discards the transaction, releasing all locks, and returns the edits
// it was created with.
func (tx *Transaction) Edits() []git.RefEdit {
	edits := tx.requestedEdits()
	_ = tx.Close()
	return edits
}

// Close rolls back a transaction which has not been committed. All locks are
// released and staged content is discarded, leaving the store unchanged. It is
// safe to call Close after Commit, in which case it does nothing.
func (tx *Transaction) Close() error {
	if tx.done {
		return nil
	}
	tx.done = true

	return tx.releaseLocks()
}

func (tx *Transaction) releaseLocks() error {
	var firstErr error
	for i := range tx.updates {
		e := &tx.updates[i]
		if e.lock == nil {
			continue
		}

		if err := e.lock.release(); err != nil && firstErr == nil {
			firstErr = &IoError{Name: e.update.Name, Op: "unlocking", Err: err}
		}
		e.lock = nil
	}

	return firstErr
}

func (tx *Transaction) validate() error {
	for _, e := range tx.updates {
		if err := e.update.Name.Validate(); err != nil {
			return &InvalidRefEditError{Name: e.update.Name, Err: err}
		}

		var targets []git.Target
		switch change := e.update.Change.(type) {
		case git.Update:
			targets = append(targets, change.New)
		case git.Delete:
		default:
			return &InvalidRefEditError{Name: e.update.Name, Err: fmt.Errorf("unsupported change %T", change)}
		}
		if previous := e.update.Change.PreviousValue(); previous != nil {
			targets = append(targets, *previous)
		}

		for _, target := range targets {
			var err error
			if target.IsSymbolic() {
				err = target.Referent.Validate()
			} else {
				err = target.OID.Validate()
			}
			if err != nil {
				return &InvalidRefEditError{Name: e.update.Name, Err: err}
			}
		}
	}

	return nil
}

// Prepare locks every reference, verifies expected previous values and stages
// the new values such that Commit can apply them. It is idempotent.
//
// On failure all locks taken so far are released and every edit is reset to
// the way it was requested, leaving the store unchanged. The transaction stays
// open in that case.
func (tx *Transaction) Prepare(ctx context.Context) (returnedErr error) {
	if tx.done {
		return ErrTransactionDone
	}
	if tx.state == StatePrepared {
		return nil
	}

	span, ctx := opentracing.StartSpanFromContext(ctx, "refstore.Transaction.Prepare")
	span.SetTag("edits", len(tx.updates))
	span.SetTag("transaction_id", tx.id)
	defer span.Finish()

	logger := ctxlogrus.Extract(ctx).WithField("transaction_id", tx.id)

	defer func() {
		tx.store.metrics.observeStage("prepare", returnedErr)
	}()

	if name, ok := tx.requestedEdits().FirstDuplicate(); ok {
		return &DuplicateRefEditsError{FirstName: name}
	}

	if err := tx.validate(); err != nil {
		return err
	}

	defer func() {
		if returnedErr == nil {
			return
		}

		if err := tx.releaseLocks(); err != nil {
			logger.WithError(err).Warn("releasing locks after failed prepare")
		}
		for i := range tx.updates {
			tx.updates[i].update = tx.updates[i].requested
		}
	}()

	for i := range tx.updates {
		if err := tx.lockRefAndApplyChange(ctx, logger, &tx.updates[i]); err != nil {
			return err
		}
	}

	tx.state = StatePrepared

	return nil
}

func (tx *Transaction) lockRefAndApplyChange(ctx context.Context, logger *logrus.Entry, e *edit) error {
	if e.lock != nil {
		panic("locks can only be acquired once and it's all or nothing")
	}

	name := e.update.Name
	path := tx.store.RefPath(name)

	switch change := e.update.Change.(type) {
	case git.Delete:
		start := time.Now()
		marker, err := safe.AcquireMarker(ctx, path, tx.lockMode, tx.store.Base())
		tx.store.metrics.observeLock("marker", start)
		if err != nil {
			return &LockAcquireError{Name: name, Err: err}
		}
		e.lock = markerLock{marker}

		existing, err := tx.readLockedReference(name)
		if err != nil {
			return err
		}

		if change.Previous != nil {
			if existing == nil {
				return &DeletionReferenceMustExistError{Name: name}
			}

			// A null object ID only asserts that the reference exists.
			if change.Previous.IsSymbolic() || !change.Previous.OID.IsZeroOID() {
				if existing.Target != *change.Previous {
					actual := existing.Target
					return &ReferenceMismatchError{Name: name, Expected: *change.Previous, Actual: &actual}
				}
			}
		}
	case git.Update:
		start := time.Now()
		writer, err := safe.NewLockingFileWriter(ctx, path, tx.lockMode)
		tx.store.metrics.observeLock("writer", start)
		if err != nil {
			return &LockAcquireError{Name: name, Err: err}
		}
		e.lock = writerLock{writer}

		existing, err := tx.readLockedReference(name)
		if err != nil {
			return err
		}

		switch {
		case change.Previous == nil:
			if existing != nil {
				previous := existing.Target
				change.Previous = &previous
			}
		case !change.Previous.IsSymbolic() && change.Previous.OID.IsZeroOID():
			// A null object ID asserts that the reference is new.
			if existing != nil {
				actual := existing.Target
				return &ReferenceMismatchError{Name: name, Expected: *change.Previous, Actual: &actual}
			}
		case existing == nil:
			return &ReferenceMismatchError{Name: name, Expected: *change.Previous}
		case existing.Target != *change.Previous:
			actual := existing.Target
			return &ReferenceMismatchError{Name: name, Expected: *change.Previous, Actual: &actual}
		}

		if _, err := writer.Write(EncodeTarget(change.New)); err != nil {
			return &IoError{Name: name, Op: "staging", Err: err}
		}

		if err := writer.Seal(); err != nil {
			return &IoError{Name: name, Op: "staging", Err: err}
		}

		e.update.Change = change
	default:
		panic(fmt.Sprintf("unsupported change %T", change))
	}

	fields := logrus.Fields{
		"reference": name.String(),
		"change":    changeKind(e.update.Change),
	}
	if e.parentIndex != nil {
		fields["parent_reference"] = tx.updates[*e.parentIndex].update.Name.String()
	}
	logger.WithFields(fields).Debug("reference locked")

	return nil
}

// readLockedReference reads the current value of a reference whose lock is
// held. A directory in place of the reference can neither be replaced nor
// deleted, so it fails the edit right away instead of at commit time.
func (tx *Transaction) readLockedReference(name git.ReferenceName) (*git.Reference, error) {
	if fi, err := os.Lstat(tx.store.RefPath(name)); err == nil && fi.IsDir() {
		return nil, &IoError{Name: name, Op: "locking", Err: ErrReferenceIsDirectory}
	}

	return tx.store.readReference(name)
}

func changeKind(change git.Change) string {
	if _, ok := change.(git.Delete); ok {
		return "delete"
	}
	return "update"
}

// Commit makes all prepared changes permanent and returns the performed edits
// in their original order. Previous values which were not given by the caller
// are filled in with the values that have been overwritten. The transaction is
// prepared first if needed, in which case prepare errors are returned as is.
//
// Updates are applied before deletions. On error the transaction may have been
// applied partially: callers must then re-read the affected references as no
// attempt is made to roll back changes which have already become visible.
func (tx *Transaction) Commit(ctx context.Context) (_ []git.RefEdit, returnedErr error) {
	if tx.done {
		return nil, ErrTransactionDone
	}

	if tx.state == StateOpen {
		if err := tx.Prepare(ctx); err != nil {
			return nil, err
		}
	}

	tx.done = true

	span, ctx := opentracing.StartSpanFromContext(ctx, "refstore.Transaction.Commit")
	span.SetTag("transaction_id", tx.id)
	defer span.Finish()

	logger := ctxlogrus.Extract(ctx).WithField("transaction_id", tx.id)

	defer func() {
		tx.store.metrics.observeStage("commit", returnedErr)

		if returnedErr != nil {
			if err := tx.releaseLocks(); err != nil {
				logger.WithError(err).Warn("releasing locks after failed commit")
			}
		}
	}()

	// Perform updates first so live commits remain referenced.
	for i := range tx.updates {
		e := &tx.updates[i]

		change, ok := e.update.Change.(git.Update)
		if !ok {
			continue
		}

		writer := e.takeLock("each ref is locked").(writerLock)
		if err := tx.applyUpdate(e.update.Name, change, writer); err != nil {
			_ = writer.Close()
			return nil, err
		}

		tx.store.metrics.editsTotal.WithLabelValues("update").Inc()
		logger.WithFields(logrus.Fields{
			"reference": e.update.Name.String(),
			"target":    change.New.String(),
		}).Debug("reference updated")
	}

	for i := range tx.updates {
		e := &tx.updates[i]

		change, ok := e.update.Change.(git.Delete)
		if !ok {
			continue
		}

		marker := e.takeLock("each ref is locked, even deletions").(markerLock)
		if err := tx.applyDelete(e.update.Name, change, marker); err != nil {
			_ = marker.Release()
			return nil, err
		}

		tx.store.metrics.editsTotal.WithLabelValues("delete").Inc()
		logger.WithField("reference", e.update.Name.String()).Debug("reference deleted")
	}

	edits := make([]git.RefEdit, 0, len(tx.updates))
	for _, e := range tx.updates {
		edits = append(edits, e.update)
	}

	return edits, nil
}

func (tx *Transaction) applyUpdate(name git.ReferenceName, change git.Update, writer writerLock) error {
	// Symbolic references never get a reflog entry.
	if !change.New.IsSymbolic() && tx.committer != nil {
		oldOID := git.ZeroOID
		if change.Previous != nil && !change.Previous.IsSymbolic() {
			oldOID = change.Previous.OID
		}

		if _, err := tx.store.appendReflog(name, oldOID, change.New.OID, *tx.committer, change.Message); err != nil {
			return &IoError{Name: name, Op: "writing reflog of", Err: err}
		}
	}

	if change.Log == git.RefLogOnly {
		if err := writer.Close(); err != nil {
			return &IoError{Name: name, Op: "unlocking", Err: err}
		}
		return nil
	}

	if err := writer.Commit(); err != nil {
		return &IoError{Name: name, Op: "committing", Err: err}
	}

	return nil
}

func (tx *Transaction) applyDelete(name git.ReferenceName, change git.Delete, marker markerLock) error {
	if change.Log != git.RefLogOnly {
		if err := os.Remove(tx.store.RefPath(name)); err != nil && !os.IsNotExist(err) {
			return &IoError{Name: name, Op: "deleting", Err: err}
		}
	}

	if err := tx.store.removeReflog(name); err != nil {
		return &IoError{Name: name, Op: "deleting reflog of", Err: err}
	}

	// Committing the marker also removes leading directories which became
	// empty.
	if err := marker.Commit(); err != nil {
		return &IoError{Name: name, Op: "unlocking", Err: err}
	}

	return nil
}
