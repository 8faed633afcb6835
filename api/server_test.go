package api

import (
	"crypto/rand"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/poechain/go-poechain/emitter"
	"github.com/poechain/go-poechain/inter"
	"github.com/poechain/go-poechain/inter/validatorpk"
	"github.com/poechain/go-poechain/ledger"
	"github.com/poechain/go-poechain/notary"
	"github.com/poechain/go-poechain/poechain"
	"github.com/poechain/go-poechain/validators"
)

func newTestServer(t *testing.T) (*Server, *ledger.MemStore, *notary.Notary) {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	rules := poechain.FakeNetRules()
	_, notaryKey, err := mode3.GenerateKey(rand.Reader)
	require.NoError(t, err)
	nt := notary.NewNotary(rules, notaryKey, make(chan *inter.LogBlock, 4), log)

	registry := validators.NewRegistry(log)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	pub := validatorpk.PubKey{
		Type: validatorpk.Types.Secp256k1,
		Raw:  crypto.FromECDSAPub(&key.PublicKey),
	}
	require.NoError(t, registry.Register(1, pub, big.NewInt(100)))

	state := ledger.NewState(rules,
		common.HexToAddress("0x01"), common.HexToAddress("0x02"), log)
	store := ledger.NewMemStore()

	difficulty := validators.NewDifficultyTracker(rules.Difficulty, 1000)
	srv := NewServer(rules, nt, state, registry, difficulty, store, prometheus.NewRegistry(), log)
	return srv, store, nt
}

func get(t *testing.T, router http.Handler, path string, out interface{}) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if out != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec
}

func TestStatusEndpoint(t *testing.T) {
	require := require.New(t)
	srv, _, nt := newTestServer(t)
	router := srv.Router()

	var status statusResponse
	rec := get(t, router, "/status", &status)
	require.Equal(http.StatusOK, rec.Code)
	require.Equal("application/json", rec.Header().Get("Content-Type"))
	require.Equal(poechain.FakeNetworkID, status.NetworkID)
	require.EqualValues(0, status.FinalizedHeight)
	require.Zero(status.PendingReceipts)

	// A submitted receipt shows up as pending.
	emKey, err := crypto.GenerateKey()
	require.NoError(err)
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	em := emitter.NewEmitter(poechain.FakeNetRules(), emKey, log)
	r, err := em.EmitReceipt(emitter.ExecutionContext{
		Origin:   inter.Origin{Kind: inter.OriginContainer, ID: "c1"},
		Op:       "exec",
		Usage:    inter.ResourceUsage{CPUMillis: 10},
		Time:     inter.FromTime(time.Now()),
		Attested: true,
	})
	require.NoError(err)
	_, err = nt.Submit(r)
	require.NoError(err)

	rec = get(t, router, "/status", &status)
	require.Equal(http.StatusOK, rec.Code)
	require.Equal(1, status.PendingReceipts)
}

func TestMiningStatsEndpoint(t *testing.T) {
	require := require.New(t)
	srv, _, _ := newTestServer(t)

	var stats miningStatsResponse
	rec := get(t, srv.Router(), "/mining/stats", &stats)
	require.Equal(http.StatusOK, rec.Code)
	require.Equal(1, stats.ActiveValidators)
	require.Equal("100", stats.TotalStake)
	require.NotZero(stats.QuorumWeight)
	require.EqualValues(1000, stats.Difficulty)
}

func TestBlockEndpoints(t *testing.T) {
	require := require.New(t)
	srv, store, _ := newTestServer(t)
	router := srv.Router()

	// Empty store: 404s, not 500s.
	rec := get(t, router, "/blocks/latest", nil)
	require.Equal(http.StatusNotFound, rec.Code)
	rec = get(t, router, "/logblocks/latest", nil)
	require.Equal(http.StatusNotFound, rec.Code)
	rec = get(t, router, "/blocks/abc", nil)
	require.Equal(http.StatusBadRequest, rec.Code)

	block := &inter.MinedBlock{
		Version:   inter.BlockVersion,
		Height:    idx.Block(7),
		Time:      1000,
		Proposer:  1,
		MintMicro: 42,
	}
	require.NoError(store.PutBlock(block))

	var view blockResponse
	rec = get(t, router, "/blocks/latest", &view)
	require.Equal(http.StatusOK, rec.Code)
	require.EqualValues(7, view.Height)
	require.EqualValues(42, view.MintMicro)
	require.Equal(block.ID().Hex(), view.ID)

	view = blockResponse{}
	rec = get(t, router, "/blocks/7", &view)
	require.Equal(http.StatusOK, rec.Code)
	require.EqualValues(7, view.Height)
}

func TestMetricsEndpoint(t *testing.T) {
	require := require.New(t)
	srv, _, _ := newTestServer(t)
	router := srv.Router()

	// Hit an instrumented route first so the counter vec has a sample.
	get(t, router, "/status", nil)

	rec := get(t, router, "/metrics", nil)
	require.Equal(http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(body, "poechain_finalized_height 0")
	require.Contains(body, "poechain_active_validators 1")
	require.Contains(body, "poechain_difficulty 1000")
	require.Contains(body, `poechain_api_requests_total{route="/status",status="2xx"} 1`)
}
