package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/errors"

	"github.com/ruletest-dev/ruletest/types"
)

// Mode switches the verifier between comparing and recording
type Mode string

const (
	ModeVerify Mode = "verify"
	ModeRecord Mode = "record"
)

// Status is the verdict for one artifact
type Status string

const (
	StatusMatch    Status = "match"
	StatusMismatch Status = "mismatch"
	StatusMissing  Status = "missing"
)

// Outcome is the result of verifying one artifact. Expected and Actual are the
// raw bytes; the diff is computed after normalization.
type Outcome struct {
	Key      Key
	Status   Status
	Expected []byte
	Actual   []byte
	Diff     string
}

// Err converts a non-matching outcome into MissingError or MismatchError
func (o Outcome) Err() error {
	switch o.Status {
	case StatusMissing:
		return &MissingError{Key: o.Key}
	case StatusMismatch:
		return &MismatchError{Key: o.Key, Diff: o.Diff, Expected: o.Expected, Actual: o.Actual}
	default:
		return nil
	}
}

// Artifact is one captured stream to be checked against its snapshot
type Artifact struct {
	Role        types.ArtifactRole
	Name        string
	Content     []byte
	Normalizers []string
}

// Config holds configuration for creating a Verifier
type Config struct {
	Store Store
	Mode  Mode
	Log   log.Logger
}

// Verifier compares captured output with stored snapshots, or records it in
// record mode. The store is only read in verify mode.
type Verifier struct {
	store Store
	mode  Mode
	log   log.Logger
	locks keyedMutex
}

func NewVerifier(cfg Config) (*Verifier, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("snapshot store is required")
	}
	switch cfg.Mode {
	case "":
		cfg.Mode = ModeVerify
	case ModeVerify, ModeRecord:
	default:
		return nil, fmt.Errorf("unknown snapshot mode %q", cfg.Mode)
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided to snapshot verifier, using default")
	}
	return &Verifier{store: cfg.Store, mode: cfg.Mode, log: cfg.Log}, nil
}

// Mode returns the configured mode
func (v *Verifier) Mode() Mode {
	return v.mode
}

// Verify checks actual against the snapshot stored under key, normalizing only
// line endings.
func (v *Verifier) Verify(ctx context.Context, key Key, actual []byte) (Outcome, error) {
	return v.VerifyNormalized(ctx, key, actual, nil)
}

// VerifyNormalized is Verify with additional named normalizers applied to both
// sides before comparing.
func (v *Verifier) VerifyNormalized(ctx context.Context, key Key, actual []byte, normalizers []string) (Outcome, error) {
	if err := key.Validate(); err != nil {
		return Outcome{}, err
	}
	if err := ValidateNormalizers(normalizers); err != nil {
		return Outcome{}, err
	}

	if v.mode == ModeRecord {
		return v.record(ctx, key, actual)
	}

	expected, err := v.store.Read(ctx, key)
	if errors.Is(err, ErrNotFound) {
		v.log.Warn("Snapshot missing", "snapshot", key.String())
		return Outcome{Key: key, Status: StatusMissing, Actual: actual}, nil
	}
	if err != nil {
		return Outcome{}, err
	}

	outcome := Outcome{Key: key, Expected: expected, Actual: actual}
	want := v.normalize(expected, normalizers, key, "expected")
	got := v.normalize(actual, normalizers, key, "actual")
	if bytes.Equal(want, got) {
		outcome.Status = StatusMatch
		return outcome, nil
	}
	outcome.Status = StatusMismatch
	outcome.Diff = UnifiedDiff(want, got)
	v.log.Debug("Snapshot mismatch", "snapshot", key.String())
	return outcome, nil
}

// normalize falls back to line-ending normalization when a normalizer rejects
// its input, so the mismatch still produces a readable diff.
func (v *Verifier) normalize(b []byte, names []string, key Key, side string) []byte {
	out, err := normalize(b, names)
	if err != nil {
		v.log.Warn("Normalization failed, comparing raw output", "snapshot", key.String(), "side", side, "err", err)
		return normalizeLineEndings(b)
	}
	return out
}

func (v *Verifier) record(ctx context.Context, key Key, actual []byte) (Outcome, error) {
	unlock := v.locks.lock(key)
	defer unlock()

	if err := v.store.Write(ctx, key, actual); err != nil {
		return Outcome{}, err
	}
	v.log.Info("Recorded snapshot", "snapshot", key.String(), "bytes", len(actual))
	return Outcome{Key: key, Status: StatusMatch, Expected: actual, Actual: actual}, nil
}

// VerifyAll verifies every artifact of one case. It rejects an empty artifact
// list and duplicate roles or names.
func (v *Verifier) VerifyAll(ctx context.Context, caseID string, artifacts []Artifact) ([]Outcome, error) {
	if len(artifacts) == 0 {
		return nil, ErrNoArtifacts
	}
	roles := make(map[types.ArtifactRole]bool, len(artifacts))
	names := make(map[string]bool, len(artifacts))
	for _, a := range artifacts {
		if roles[a.Role] || names[a.Name] {
			return nil, fmt.Errorf("case %s: duplicate artifact %s", caseID, a.Name)
		}
		roles[a.Role] = true
		names[a.Name] = true
	}

	outcomes := make([]Outcome, 0, len(artifacts))
	for _, a := range artifacts {
		outcome, err := v.VerifyNormalized(ctx, Key{CaseID: caseID, Name: a.Name}, a.Content, a.Normalizers)
		if err != nil {
			return outcomes, err
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

// FirstFailure returns the error of the first non-matching outcome
func FirstFailure(outcomes []Outcome) error {
	for _, o := range outcomes {
		if err := o.Err(); err != nil {
			return err
		}
	}
	return nil
}

type keyedMutex struct {
	mu    sync.Mutex
	locks map[Key]*sync.Mutex
}

func (k *keyedMutex) lock(key Key) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[Key]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
