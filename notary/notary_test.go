package notary

import (
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/poechain/go-poechain/emitter"
	"github.com/poechain/go-poechain/inter"
	"github.com/poechain/go-poechain/poechain"
)

func newTestNotary(t *testing.T, rules poechain.Rules) (*Notary, *mode3.PublicKey) {
	t.Helper()
	pub, priv, err := mode3.GenerateKey(rand.Reader)
	require.NoError(t, err)
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return NewNotary(rules, priv, make(chan *inter.LogBlock, 16), log), pub
}

// emitReceipts produces n sealed receipts from one container origin.
func emitReceipts(t *testing.T, n int) []*inter.StepReceipt {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	em := emitter.NewEmitter(poechain.MainNetRules(), key, log)

	origin := inter.Origin{Kind: inter.OriginContainer, ID: "c1"}
	base := inter.FromTime(time.Now())
	out := make([]*inter.StepReceipt, 0, n)
	for i := 0; i < n; i++ {
		r, err := em.EmitReceipt(emitter.ExecutionContext{
			Origin: origin,
			Op:     "exec",
			Usage:  inter.ResourceUsage{CPUMillis: uint64(10 + i)},
			Time:   base + inter.Timestamp(i),
		})
		require.NoError(t, err)
		out = append(out, r)
	}
	return out
}

// TestSeal verifies batch sealing: ordering, root, range, height and the
// notary signature.
func TestSeal(t *testing.T) {
	require := require.New(t)
	n, pub := newTestNotary(t, poechain.MainNetRules())
	receipts := emitReceipts(t, 5)

	for _, r := range receipts {
		full, err := n.Submit(r)
		require.NoError(err)
		require.False(full)
	}
	require.Equal(5, n.PendingCount())

	b, err := n.Seal()
	require.NoError(err)
	require.NotNil(b)

	// Everything pending was drained, in submission order.
	require.Equal(0, n.PendingCount())
	require.EqualValues(5, b.Count)
	for i, r := range receipts {
		require.Equal(r.Hash, b.Receipts[i])
	}
	require.NoError(b.CheckIntegrity())

	// Heights are monotonic starting at 1.
	require.EqualValues(1, b.Height)
	require.EqualValues(1, n.Height())

	// The covered range spans the receipt timestamps.
	require.Equal(receipts[0].Time, b.Range.From)
	require.Equal(receipts[4].Time, b.Range.To)

	// The Dilithium signature verifies against the notary pubkey.
	require.NoError(VerifyNotarySig(b, pub))

	// Sealing an empty queue is a no-op.
	b, err = n.Seal()
	require.NoError(err)
	require.Nil(b)
}

// TestSizeTrigger verifies the size trigger fires at MaxReceipts and that a
// sealed batch is capped at the batch size.
func TestSizeTrigger(t *testing.T) {
	require := require.New(t)
	rules := poechain.FakeNetRules() // MaxReceipts=8
	n, _ := newTestNotary(t, rules)
	receipts := emitReceipts(t, int(rules.Batching.MaxReceipts)+3)

	var fired bool
	for _, r := range receipts {
		full, err := n.Submit(r)
		require.NoError(err)
		if full {
			fired = true
			b, err := n.Seal()
			require.NoError(err)
			require.EqualValues(rules.Batching.MaxReceipts, b.Count)
		}
	}
	require.True(fired)
	// The overflow stays pending for the next trigger.
	require.Equal(3, n.PendingCount())
}

// TestDuplicateAndBackpressure verifies the dup guard and the bounded queue.
func TestDuplicateAndBackpressure(t *testing.T) {
	require := require.New(t)
	rules := poechain.FakeNetRules()
	rules.Batching.Capacity = 10
	rules.Batching.MaxReceipts = 10
	n, _ := newTestNotary(t, rules)

	receipts := emitReceipts(t, 11)

	// A receipt may be pending only once.
	_, err := n.Submit(receipts[0])
	require.NoError(err)
	_, err = n.Submit(receipts[0])
	require.ErrorIs(err, ErrDuplicateReceipt)

	// A notarized receipt is also rejected on resubmission.
	for _, r := range receipts[1:10] {
		_, err := n.Submit(r)
		require.NoError(err)
	}
	// Capacity reached: the 11th receipt is rejected, not buffered.
	_, err = n.Submit(receipts[10])
	require.ErrorIs(err, ErrQueueFull)
	require.Equal(10, n.PendingCount())

	_, err = n.Seal()
	require.NoError(err)
	_, err = n.Submit(receipts[0])
	require.ErrorIs(err, ErrDuplicateReceipt)
}

// TestTamperedReceiptRejected verifies boundary integrity checking.
func TestTamperedReceiptRejected(t *testing.T) {
	require := require.New(t)
	n, _ := newTestNotary(t, poechain.MainNetRules())

	r := emitReceipts(t, 1)[0]
	r.Usage.CPUMillis++
	_, err := n.Submit(r)
	require.ErrorIs(err, inter.ErrHashMismatch)
	require.Equal(0, n.PendingCount())
}

// TestSigningFailureKeepsPending verifies that a signing failure leaves the
// batch pending for the next trigger instead of dropping it.
func TestSigningFailureKeepsPending(t *testing.T) {
	require := require.New(t)
	n, pub := newTestNotary(t, poechain.MainNetRules())
	receipts := emitReceipts(t, 4)
	for _, r := range receipts {
		_, err := n.Submit(r)
		require.NoError(err)
	}

	key := n.key
	n.key = nil
	_, err := n.Seal()
	require.ErrorIs(err, ErrNoNotaryKey)

	// Nothing was lost and no height was consumed.
	require.Equal(4, n.PendingCount())
	require.EqualValues(0, n.Height())

	// The retried seal produces the identical batch.
	n.key = key
	b, err := n.Seal()
	require.NoError(err)
	require.EqualValues(1, b.Height)
	require.EqualValues(4, b.Count)
	require.Equal(receipts[0].Hash, b.Receipts[0])
	require.NoError(VerifyNotarySig(b, pub))
}

// TestConcurrentSealHeights races two sealers over two full batches: heights
// must come out strictly increasing, never duplicated.
func TestConcurrentSealHeights(t *testing.T) {
	require := require.New(t)
	rules := poechain.MainNetRules()
	rules.Batching.MaxReceipts = 4
	n, _ := newTestNotary(t, rules)

	for _, r := range emitReceipts(t, 8) {
		_, err := n.Submit(r)
		require.NoError(err)
	}

	type result struct {
		block *inter.LogBlock
		err   error
	}
	results := make(chan result, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, err := n.Seal()
			results <- result{b, err}
		}()
	}
	wg.Wait()
	close(results)

	heights := make(map[idx.Block]bool)
	for r := range results {
		require.NoError(r.err)
		require.NotNil(r.block)
		heights[r.block.Height] = true
	}
	require.Len(heights, 2)
	require.True(heights[1])
	require.True(heights[2])
	require.EqualValues(2, n.Height())
}

// TestSeenHorizonBounded checks the dedup map is pruned past the retention
// horizon: a receipt from an evicted batch is accepted again, while newer
// ones are still rejected as duplicates.
func TestSeenHorizonBounded(t *testing.T) {
	require := require.New(t)
	rules := poechain.MainNetRules()
	rules.Batching.MaxReceipts = 1
	n, _ := newTestNotary(t, rules)
	n.seenLimit = 2

	receipts := emitReceipts(t, 3)
	for _, r := range receipts {
		_, err := n.Submit(r)
		require.NoError(err)
		_, err = n.Seal()
		require.NoError(err)
	}

	// The first batch fell off the horizon.
	_, err := n.Submit(receipts[0])
	require.NoError(err)
	// The latest two batches are still deduplicated.
	_, err = n.Submit(receipts[2])
	require.ErrorIs(err, ErrDuplicateReceipt)
	require.Len(n.seen, 3)
}
