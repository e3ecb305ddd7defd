// Package reconcile restores missing public keys for managed SSH key records.
//
// Earlier import flows may store a key record before its public key is known,
// leaving the field empty or set to a placeholder marker. The reconciler walks
// the whole record set, derives the real public key from the private key held
// in the secret store, and commits all repairs in a single batch. One record's
// failure never aborts the batch: per-record problems become outcome values in
// the run summary, and only store-level fetch/commit errors fail the run.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/keymend/keymend/internal/logutil"
)

// PlaceholderMarker is the sentinel import flows store in PublicKey when the
// real public key has not been derived yet. A public key that contains the
// marker anywhere is treated as not yet derived.
const PlaceholderMarker = "PLACEHOLDER"

// Run-level errors. Per-record conditions (missing secret, derivation failure)
// are reported as outcomes, never as errors.
var (
	ErrStoreUnavailable = errors.New("record store unavailable")
	ErrCommitFailed     = errors.New("batch commit failed")
)

// KeyRecord is the minimal view of a stored SSH key the reconciler works on.
type KeyRecord struct {
	ID        uint
	Name      string
	KeyType   string
	PublicKey string
}

// NeedsRepair reports whether a public key value is missing or still the
// import placeholder.
func NeedsRepair(publicKey string) bool {
	return publicKey == "" || strings.Contains(publicKey, PlaceholderMarker)
}

// RecordStore is the persistent store holding key records.
type RecordStore interface {
	// FetchAll returns every record, in an order that is stable for one call.
	FetchAll(ctx context.Context) ([]KeyRecord, error)
	// CommitBatch durably applies the given mutated records all-or-nothing.
	CommitBatch(ctx context.Context, mutated []KeyRecord) error
}

// SecretSource exposes read-only access to private key material.
type SecretSource interface {
	// PrivateKey returns the raw private key bytes for a record. An error or
	// empty bytes both mean "no secret" to the reconciler.
	PrivateKey(ctx context.Context, keyID uint) ([]byte, error)
	// Passphrase returns the key's decryption passphrase. Errors and empty
	// results both mean "no passphrase"; most keys are unencrypted.
	Passphrase(ctx context.Context, keyID uint) (string, error)
}

// DeriveFunc computes the authorized_keys form of the public key embedded in
// a private key. ok is false on any parse/decrypt/derivation failure; the
// label is used for diagnostics only.
type DeriveFunc func(privateKey []byte, keyType, passphrase, label string) (publicKey string, ok bool)

// Outcome classifies how one candidate record was resolved.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeSkipped   Outcome = "skipped_no_secret"
	OutcomeFailed    Outcome = "failed_derivation"
)

// KeyOutcome records the resolution of one candidate.
type KeyOutcome struct {
	KeyID   uint    `json:"key_id"`
	Name    string  `json:"name"`
	Outcome Outcome `json:"outcome"`
	Detail  string  `json:"detail,omitempty"`
}

// Result summarizes one reconciliation run. When ReconcileAll returns
// ErrCommitFailed the success counts are tentative: the mutations were staged
// in memory but nothing was durably written.
type Result struct {
	RunID        string       `json:"run_id"`
	StartedAt    time.Time    `json:"started_at"`
	FinishedAt   time.Time    `json:"finished_at"`
	AlreadyValid int          `json:"already_valid"`
	Succeeded    int          `json:"succeeded"`
	Skipped      int          `json:"skipped"`
	Failed       int          `json:"failed"`
	Committed    bool         `json:"committed"`
	Outcomes     []KeyOutcome `json:"outcomes,omitempty"`
}

// Event is a progress notification emitted during a run.
type Event struct {
	Stage      string      `json:"stage"` // "start", "candidate", "done"
	RunID      string      `json:"run_id"`
	Candidates int         `json:"candidates,omitempty"`
	Key        *KeyOutcome `json:"key,omitempty"`
	Result     *Result     `json:"result,omitempty"`
}

// Reconciler repairs key records whose public key is missing or a
// placeholder. All collaborators are injected so tests can substitute fakes.
type Reconciler struct {
	Records RecordStore
	Secrets SecretSource
	Derive  DeriveFunc

	// OnEvent, when set, receives progress notifications on the reconciler's
	// goroutine. It is advisory and must never affect control flow.
	OnEvent func(Event)
}

// ReconcileAll repairs every record whose public key is missing or a
// placeholder, in fetch order, one candidate at a time. Candidates without a
// secret are skipped; candidates whose derivation fails keep their original
// public key value. If at least one candidate succeeded, all staged repairs
// are committed in a single batch.
//
// The returned Result is non-nil even on error. A fetch error aborts before
// any secret or derivation call and wraps ErrStoreUnavailable. A commit error
// wraps ErrCommitFailed; in that case the Result's successes describe staged
// work that was not durably written.
func (r *Reconciler) ReconcileAll(ctx context.Context) (*Result, error) {
	res := &Result{RunID: uuid.NewString(), StartedAt: time.Now()}

	records, err := r.Records.FetchAll(ctx)
	if err != nil {
		res.FinishedAt = time.Now()
		return res, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var candidates []KeyRecord
	for _, rec := range records {
		if NeedsRepair(rec.PublicKey) {
			candidates = append(candidates, rec)
		} else {
			res.AlreadyValid++
		}
	}
	r.emit(Event{Stage: "start", RunID: res.RunID, Candidates: len(candidates)})

	var mutated []KeyRecord
	for i := range candidates {
		out := r.repairOne(ctx, &candidates[i])
		switch out.Outcome {
		case OutcomeSucceeded:
			res.Succeeded++
			mutated = append(mutated, candidates[i])
		case OutcomeSkipped:
			res.Skipped++
		default:
			res.Failed++
		}
		res.Outcomes = append(res.Outcomes, out)
		r.emit(Event{Stage: "candidate", RunID: res.RunID, Key: &out})
	}

	if len(mutated) > 0 {
		if err := r.Records.CommitBatch(ctx, mutated); err != nil {
			res.FinishedAt = time.Now()
			r.emit(Event{Stage: "done", RunID: res.RunID, Result: res})
			return res, fmt.Errorf("%w: %v", ErrCommitFailed, err)
		}
		res.Committed = true
	}

	res.FinishedAt = time.Now()
	r.emit(Event{Stage: "done", RunID: res.RunID, Result: res})
	return res, nil
}

// repairOne resolves a single candidate. Every failure mode, including a
// panic from a collaborator, is confined to this candidate's outcome so the
// remaining candidates still get processed.
func (r *Reconciler) repairOne(ctx context.Context, rec *KeyRecord) (out KeyOutcome) {
	out = KeyOutcome{KeyID: rec.ID, Name: rec.Name}
	defer func() {
		if p := recover(); p != nil {
			out.Outcome = OutcomeFailed
			out.Detail = fmt.Sprintf("panic: %v", p)
			log.Printf("reconcile: panic while repairing key %q (ID %d): %v", logutil.SanitizeForLog(rec.Name), rec.ID, p)
		}
	}()

	priv, err := r.Secrets.PrivateKey(ctx, rec.ID)
	if err != nil || len(priv) == 0 {
		out.Outcome = OutcomeSkipped
		if err != nil {
			out.Detail = err.Error()
		} else {
			out.Detail = "no private key stored"
		}
		return out
	}

	passphrase, err := r.Secrets.Passphrase(ctx, rec.ID)
	if err != nil {
		passphrase = ""
	}

	pub, ok := r.Derive(priv, rec.KeyType, passphrase, rec.Name)
	if !ok {
		out.Outcome = OutcomeFailed
		out.Detail = "could not derive public key from private key"
		return out
	}

	rec.PublicKey = pub
	out.Outcome = OutcomeSucceeded
	return out
}

func (r *Reconciler) emit(ev Event) {
	if r.OnEvent != nil {
		r.OnEvent(ev)
	}
}
