// Package validators implements the validator registry and mining engine:
// the stake-weighted validator set, deterministic proposer selection, the
// difficulty controller, and slashing on proven misbehaviour.
//
// The registry is the single shared read-mostly table of the pipeline.
// Writes (register, stake change, slash) are serialized behind a mutex and
// bump a version; reads go through an atomically-swapped immutable snapshot
// carrying a prebuilt stake-weighted validator set, so the finalizer always
// evaluates quorum against one consistent snapshot per round without taking
// any lock.
package validators

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/Fantom-foundation/lachesis-base/inter/pos"
	"github.com/sirupsen/logrus"

	"github.com/poechain/go-poechain/inter"
	"github.com/poechain/go-poechain/inter/validatorpk"
)

// Validator status bits. A zero status is a healthy active validator.
const (
	// DoublesignBit marks a validator slashed for equivocation.
	DoublesignBit = uint64(1 << 0)
	// OfflineBit marks a validator deactivated by governance.
	OfflineBit = uint64(1 << 1)

	// OkStatus is a healthy active validator.
	OkStatus = uint64(0)
)

var (
	// ErrAlreadyRegistered is returned when registering an existing ID.
	ErrAlreadyRegistered = errors.New("validator already registered")

	// ErrUnknownValidator is returned for operations on unregistered IDs.
	ErrUnknownValidator = errors.New("unknown validator")

	// ErrNonPositiveStake is returned when a registration or stake update
	// would leave a validator with stake <= 0.
	ErrNonPositiveStake = errors.New("validator stake must be positive")

	// ErrWrongEvidence is returned when slashing evidence does not verify or
	// does not accuse the named validator.
	ErrWrongEvidence = errors.New("evidence does not prove misbehaviour")
)

// Profile is one validator's registry entry.
type Profile struct {
	PubKey validatorpk.PubKey
	Stake  *big.Int
	// ReputationPpm is a governance-maintained quality score in ppm.
	ReputationPpm uint64
	Status        uint64
}

// IsSlashed reports whether the validator was slashed for misbehaviour.
func (p Profile) IsSlashed() bool {
	return p.Status&DoublesignBit != 0
}

// IsActive reports whether the validator participates in consensus.
func (p Profile) IsActive() bool {
	return p.Status == OkStatus
}

// Copy returns a deep copy of the profile.
func (p Profile) Copy() Profile {
	cp := p
	cp.PubKey = p.PubKey.Copy()
	cp.Stake = new(big.Int).Set(p.Stake)
	return cp
}

// Snapshot is an immutable view of the registry at one version. Active is a
// prebuilt stake-weighted set over the active validators only, so quorum
// evaluation needs no further lookups.
type Snapshot struct {
	Version    uint64
	Active     *pos.Validators
	Profiles   map[idx.ValidatorID]Profile
	TotalStake *big.Int
}

// Profile returns the profile of the given validator, if registered. The
// result is a copy: callers cannot reach the snapshot's stake through it.
func (s *Snapshot) Profile(id idx.ValidatorID) (Profile, bool) {
	p, ok := s.Profiles[id]
	if !ok {
		return Profile{}, false
	}
	return p.Copy(), true
}

// IsActive reports whether the validator is in the snapshot's active set.
func (s *Snapshot) IsActive(id idx.ValidatorID) bool {
	return s.Active.Exists(id)
}

// Registry is the shared validator table.
type Registry struct {
	mu       sync.Mutex
	profiles map[idx.ValidatorID]Profile
	version  uint64

	snap atomic.Value // *Snapshot

	log *logrus.Entry
}

// NewRegistry creates an empty registry.
func NewRegistry(log *logrus.Logger) *Registry {
	r := &Registry{
		profiles: make(map[idx.ValidatorID]Profile),
		log:      log.WithField("module", "validators"),
	}
	r.rebuildLocked()
	return r
}

// Snapshot returns the current immutable registry view. It never blocks on
// writers.
func (r *Registry) Snapshot() *Snapshot {
	return r.snap.Load().(*Snapshot)
}

// Register adds a validator with the given key and initial stake.
func (r *Registry) Register(id idx.ValidatorID, pub validatorpk.PubKey, stake *big.Int) error {
	if err := pub.Validate(); err != nil {
		return err
	}
	if stake == nil || stake.Sign() <= 0 {
		return ErrNonPositiveStake
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.profiles[id]; ok {
		return fmt.Errorf("%w: %d", ErrAlreadyRegistered, id)
	}
	r.profiles[id] = Profile{
		PubKey: pub.Copy(),
		Stake:  new(big.Int).Set(stake),
	}
	r.rebuildLocked()
	r.log.WithFields(logrus.Fields{
		"validator": uint32(id),
		"stake":     stake.String(),
	}).Info("validator registered")
	return nil
}

// UpdateStake applies a signed stake delta. The resulting stake must remain
// positive.
func (r *Registry) UpdateStake(id idx.ValidatorID, delta *big.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownValidator, id)
	}
	next := new(big.Int).Add(p.Stake, delta)
	if next.Sign() <= 0 {
		return ErrNonPositiveStake
	}
	p.Stake = next
	r.profiles[id] = p
	r.rebuildLocked()
	return nil
}

// SetReputation updates the governance quality score.
func (r *Registry) SetReputation(id idx.ValidatorID, ppm uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownValidator, id)
	}
	p.ReputationPpm = ppm
	r.profiles[id] = p
	r.rebuildLocked()
	return nil
}

// Slash penalizes a validator for proven misbehaviour: the evidence is
// verified, the stake is halved and the validator is excluded from the
// active set (and thus from quorum) from the next snapshot on.
func (r *Registry) Slash(id idx.ValidatorID, evidence *inter.MisbehaviourProof) error {
	if evidence == nil {
		return ErrWrongEvidence
	}
	if err := evidence.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrWrongEvidence, err)
	}
	if evidence.Offender() != id {
		return fmt.Errorf("%w: accuses %d, not %d", ErrWrongEvidence, evidence.Offender(), id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownValidator, id)
	}
	if p.IsSlashed() {
		return nil // slashing is idempotent per offender
	}
	p.Stake = new(big.Int).Rsh(p.Stake, 1)
	p.Status |= DoublesignBit
	r.profiles[id] = p
	r.rebuildLocked()
	r.log.WithField("validator", uint32(id)).Warn("validator slashed for doublesign")
	return nil
}

// rebuildLocked publishes a fresh snapshot. Caller holds r.mu (or owns the
// registry exclusively during construction).
func (r *Registry) rebuildLocked() {
	r.version++

	builder := pos.NewBigBuilder()
	profiles := make(map[idx.ValidatorID]Profile, len(r.profiles))
	total := new(big.Int)
	for id, p := range r.profiles {
		profiles[id] = p.Copy()
		if p.IsActive() {
			builder.Set(id, p.Stake)
			total.Add(total, p.Stake)
		}
	}
	r.snap.Store(&Snapshot{
		Version:    r.version,
		Active:     builder.Build(),
		Profiles:   profiles,
		TotalStake: total,
	})
}
