package emitter

import (
	"sync"
	"testing"
	"time"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/poechain/go-poechain/inter"
	"github.com/poechain/go-poechain/poechain"
)

func newTestEmitter(t *testing.T, rules poechain.Rules) *Emitter {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return NewEmitter(rules, key, log)
}

func testCtx(origin inter.Origin, ts inter.Timestamp) ExecutionContext {
	return ExecutionContext{
		Origin:   origin,
		Op:       "deploy",
		Usage:    inter.ResourceUsage{CPUMillis: 412, MemMBSec: 265, EgressMBMilli: 1200},
		Time:     ts,
		Attested: true,
	}
}

// TestEmitReceipt verifies chaining, sealing and signing of emitted receipts.
func TestEmitReceipt(t *testing.T) {
	require := require.New(t)
	em := newTestEmitter(t, poechain.FakeNetRules())
	origin := inter.Origin{Kind: inter.OriginContainer, ID: "web-1"}
	base := inter.FromTime(time.Now())

	// First receipt chains from the zero hash.
	r1, err := em.EmitReceipt(testCtx(origin, base))
	require.NoError(err)
	require.Equal(hash.Hash{}, r1.PrevHash)
	require.NoError(r1.CheckIntegrity())
	require.NotEmpty(r1.ReceiptID)
	require.Equal(r1.Hash, em.Tail(origin))

	// Second receipt chains from the first.
	r2, err := em.EmitReceipt(testCtx(origin, base+1))
	require.NoError(err)
	require.Equal(r1.Hash, r2.PrevHash)
	require.EqualValues(2, em.ChainLength(origin))

	// The pair verifies as a chain.
	require.NoError(inter.VerifyChain(hash.Hash{}, []*inter.StepReceipt{r1, r2}))

	// Signatures recover to the emitter's key.
	require.NoError(VerifyReceiptSig(r1, &em.key.PublicKey))
	other, err := crypto.GenerateKey()
	require.NoError(err)
	require.Error(VerifyReceiptSig(r1, &other.PublicKey))
}

// TestMonotonicTime verifies per-origin timestamp ordering enforcement.
func TestMonotonicTime(t *testing.T) {
	require := require.New(t)
	em := newTestEmitter(t, poechain.FakeNetRules())
	origin := inter.Origin{Kind: inter.OriginNode, ID: "n1"}
	base := inter.FromTime(time.Now())

	_, err := em.EmitReceipt(testCtx(origin, base))
	require.NoError(err)

	// Equal timestamp is rejected.
	_, err = em.EmitReceipt(testCtx(origin, base))
	require.ErrorIs(err, ErrNonMonotonicTime)

	// Earlier timestamp is rejected.
	_, err = em.EmitReceipt(testCtx(origin, base-1))
	require.ErrorIs(err, ErrNonMonotonicTime)

	// A rejected emission leaves the tail untouched.
	tail := em.Tail(origin)
	_, err = em.EmitReceipt(testCtx(origin, base))
	require.ErrorIs(err, ErrNonMonotonicTime)
	require.Equal(tail, em.Tail(origin))
	require.EqualValues(1, em.ChainLength(origin))

	// Ordering is per origin: another origin reuses the same timestamps.
	other := inter.Origin{Kind: inter.OriginNode, ID: "n2"}
	_, err = em.EmitReceipt(testCtx(other, base))
	require.NoError(err)
}

// TestStrictAttestation verifies the attestation rule toggle.
func TestStrictAttestation(t *testing.T) {
	require := require.New(t)
	origin := inter.Origin{Kind: inter.OriginContainer, ID: "c1"}
	base := inter.FromTime(time.Now())

	// FakeNet enforces attestation.
	em := newTestEmitter(t, poechain.FakeNetRules())
	ctx := testCtx(origin, base)
	ctx.Attested = false
	_, err := em.EmitReceipt(ctx)
	require.ErrorIs(err, ErrNotAttested)

	// MainNet does not.
	em = newTestEmitter(t, poechain.MainNetRules())
	_, err = em.EmitReceipt(ctx)
	require.NoError(err)
}

// TestValidation verifies boundary rejection of malformed contexts.
func TestValidation(t *testing.T) {
	require := require.New(t)
	em := newTestEmitter(t, poechain.MainNetRules())
	base := inter.FromTime(time.Now())

	// Unknown origin kind.
	ctx := testCtx(inter.Origin{Kind: inter.OriginKind(42), ID: "x"}, base)
	_, err := em.EmitReceipt(ctx)
	require.Error(err)

	// Empty operation.
	ctx = testCtx(inter.Origin{Kind: inter.OriginServer, ID: "s1"}, base)
	ctx.Op = ""
	_, err = em.EmitReceipt(ctx)
	require.Error(err)

	// Missing signing key is fatal.
	em.key = nil
	_, err = em.EmitReceipt(testCtx(inter.Origin{Kind: inter.OriginServer, ID: "s1"}, base))
	require.ErrorIs(err, ErrNoSigningKey)
}

// TestConcurrentOrigins verifies that parallel emitters for distinct origins
// each build an intact chain.
func TestConcurrentOrigins(t *testing.T) {
	require := require.New(t)
	em := newTestEmitter(t, poechain.MainNetRules())
	base := inter.FromTime(time.Now())

	const origins = 8
	const perOrigin = 50

	var wg sync.WaitGroup
	chains := make([][]*inter.StepReceipt, origins)
	for i := 0; i < origins; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			origin := inter.Origin{Kind: inter.OriginContainer, ID: string(rune('a' + i))}
			for j := 0; j < perOrigin; j++ {
				r, err := em.EmitReceipt(testCtx(origin, base+inter.Timestamp(j)))
				if err != nil {
					t.Error(err)
					return
				}
				chains[i] = append(chains[i], r)
			}
		}()
	}
	wg.Wait()

	for i := 0; i < origins; i++ {
		require.Len(chains[i], perOrigin)
		require.NoError(inter.VerifyChain(hash.Hash{}, chains[i]))
	}
}
