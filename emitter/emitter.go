// Package emitter implements the receipt generator: the entry point of the
// pipeline that converts one infrastructure action into a signed,
// hash-chained StepReceipt.
//
// Each origin owns exactly one append-only chain. The emitter keeps the tail
// hash and last timestamp per origin; advancing a tail is the only state
// change and is exclusive per origin, so concurrent emissions for different
// origins never contend while emissions for the same origin are serialized.
package emitter

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"sync"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/poechain/go-poechain/inter"
	"github.com/poechain/go-poechain/poechain"
)

var (
	// ErrNonMonotonicTime is returned when an action's timestamp is not
	// strictly after the origin's previous receipt. The action is discarded;
	// the caller must resubmit with a corrected timestamp.
	ErrNonMonotonicTime = errors.New("non-monotonic timestamp")

	// ErrNoSigningKey is returned when the emitter has no origin key. This
	// is fatal for the emitter instance.
	ErrNoSigningKey = errors.New("signing key unavailable")

	// ErrNotAttested is returned under strict attestation rules for actions
	// whose execution context carries no attestation.
	ErrNotAttested = errors.New("execution context not attested")
)

// ExecutionContext is the sole input contract of the receipt generator: who
// did what, what it cost, and when. The emitter is agnostic to how the
// action was actually performed.
type ExecutionContext struct {
	Origin   inter.Origin
	Op       string
	Usage    inter.ResourceUsage
	Time     inter.Timestamp
	Attested bool
}

// originChain is one origin's exclusively-owned tail state.
type originChain struct {
	mu       sync.Mutex
	tail     hash.Hash
	lastTime inter.Timestamp
	length   uint64
}

// Emitter converts execution contexts into sealed, signed receipts and
// maintains the per-origin chain tails.
type Emitter struct {
	rules poechain.Rules
	key   *ecdsa.PrivateKey

	chainsMu sync.RWMutex
	chains   map[inter.Origin]*originChain

	log *logrus.Entry
}

// NewEmitter creates an emitter signing with the given origin key.
func NewEmitter(rules poechain.Rules, key *ecdsa.PrivateKey, log *logrus.Logger) *Emitter {
	return &Emitter{
		rules:  rules,
		key:    key,
		chains: make(map[inter.Origin]*originChain),
		log:    log.WithField("module", "emitter"),
	}
}

// chain returns the origin's chain state, creating it on first use.
func (em *Emitter) chain(origin inter.Origin) *originChain {
	em.chainsMu.RLock()
	c := em.chains[origin]
	em.chainsMu.RUnlock()
	if c != nil {
		return c
	}

	em.chainsMu.Lock()
	defer em.chainsMu.Unlock()
	if c = em.chains[origin]; c == nil {
		c = &originChain{}
		em.chains[origin] = c
	}
	return c
}

// EmitReceipt converts one action into a sealed, signed receipt and advances
// the origin's chain tail. The tail is advanced only after the receipt is
// fully sealed and signed, so a failed emission leaves the chain untouched.
func (em *Emitter) EmitReceipt(ctx ExecutionContext) (*inter.StepReceipt, error) {
	if em.key == nil {
		return nil, ErrNoSigningKey
	}
	if err := ctx.Origin.Validate(); err != nil {
		return nil, err
	}
	if ctx.Op == "" {
		return nil, errors.New("empty operation kind")
	}
	if em.rules.Upgrades.StrictAttestation && !ctx.Attested {
		return nil, fmt.Errorf("%w: %s", ErrNotAttested, ctx.Origin)
	}

	c := em.chain(ctx.Origin)
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.length > 0 && ctx.Time <= c.lastTime {
		return nil, fmt.Errorf("%w: origin %s, %d <= %d",
			ErrNonMonotonicTime, ctx.Origin, ctx.Time, c.lastTime)
	}

	r := &inter.StepReceipt{
		Version:   inter.ReceiptVersion,
		ReceiptID: uuid.New().String(),
		Origin:    ctx.Origin,
		Op:        ctx.Op,
		Time:      ctx.Time,
		Usage:     ctx.Usage,
		Attested:  ctx.Attested,
		PrevHash:  c.tail,
	}
	r.Hash = r.ContentHash()

	sig, err := crypto.Sign(r.Hash.Bytes(), em.key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoSigningKey, err)
	}
	r.Sig = inter.BytesToSignature(sig)

	c.tail = r.Hash
	c.lastTime = ctx.Time
	c.length++

	em.log.WithFields(logrus.Fields{
		"origin": ctx.Origin.String(),
		"op":     ctx.Op,
		"chain":  c.length,
	}).Debug("emitted receipt")

	return r, nil
}

// Tail returns the origin's current tail hash, or the zero hash if the
// origin has emitted nothing yet.
func (em *Emitter) Tail(origin inter.Origin) hash.Hash {
	em.chainsMu.RLock()
	c := em.chains[origin]
	em.chainsMu.RUnlock()
	if c == nil {
		return hash.Hash{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tail
}

// ChainLength returns how many receipts the origin has emitted.
func (em *Emitter) ChainLength(origin inter.Origin) uint64 {
	em.chainsMu.RLock()
	c := em.chains[origin]
	em.chainsMu.RUnlock()
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.length
}

// VerifyReceiptSig recovers the signer of a receipt and checks it against
// the expected origin public key.
func VerifyReceiptSig(r *inter.StepReceipt, expected *ecdsa.PublicKey) error {
	pub, err := crypto.SigToPub(r.Hash.Bytes(), r.Sig.Bytes())
	if err != nil {
		return fmt.Errorf("malformed receipt signature: %v", err)
	}
	if crypto.PubkeyToAddress(*pub) != crypto.PubkeyToAddress(*expected) {
		return errors.New("receipt signed by unexpected key")
	}
	return nil
}
