// Package api exposes the node's read-only HTTP surface: pipeline status,
// mining statistics, latest blocks and Prometheus metrics.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/poechain/go-poechain/inter"
	"github.com/poechain/go-poechain/ledger"
	"github.com/poechain/go-poechain/poechain"
	"github.com/poechain/go-poechain/validators"
)

// NotaryInfo is the slice of the notary the API reads.
type NotaryInfo interface {
	PendingCount() int
	Height() idx.Block
}

// LedgerInfo is the slice of the ledger state the API reads.
type LedgerInfo interface {
	Height() idx.Block
	Head() hash.Hash
	CumulativeMint() uint64
}

// ValidatorInfo is the slice of the registry the API reads.
type ValidatorInfo interface {
	Snapshot() *validators.Snapshot
}

// DifficultyInfo is the slice of the difficulty controller the API reads.
type DifficultyInfo interface {
	Current() uint64
}

// Server serves the node's HTTP API. All endpoints are read-only; the API
// never mutates pipeline state.
type Server struct {
	rules      poechain.Rules
	notary     NotaryInfo
	state      LedgerInfo
	registry   ValidatorInfo
	difficulty DifficultyInfo
	store      ledger.Store
	metrics    *Metrics
	gatherer   prometheus.Gatherer
	log        *logrus.Entry
}

// NewServer wires the API over the given pipeline components. The registry
// argument doubles as metrics registerer and gatherer, so tests can pass a
// private prometheus.NewRegistry().
func NewServer(
	rules poechain.Rules,
	notary NotaryInfo,
	state LedgerInfo,
	registry ValidatorInfo,
	difficulty DifficultyInfo,
	store ledger.Store,
	promRegistry *prometheus.Registry,
	log *logrus.Logger,
) *Server {
	return &Server{
		rules:      rules,
		notary:     notary,
		state:      state,
		registry:   registry,
		difficulty: difficulty,
		store:      store,
		metrics:    NewMetrics(promRegistry),
		gatherer:   promRegistry,
		log:        log.WithField("module", "api"),
	}
}

// Router builds the chi router with all API routes mounted.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Get("/status", s.instrument("/status", s.handleStatus))
	r.Get("/mining/stats", s.instrument("/mining/stats", s.handleMiningStats))
	r.Get("/blocks/latest", s.instrument("/blocks/latest", s.handleLatestBlock))
	r.Get("/blocks/{height}", s.instrument("/blocks/{height}", s.handleBlock))
	r.Get("/logblocks/latest", s.instrument("/logblocks/latest", s.handleLatestLogBlock))
	r.Get("/metrics", s.handleMetrics)
	return r
}

// statusResponse reports where every pipeline stage currently stands.
type statusResponse struct {
	NetworkID       uint64 `json:"networkId"`
	NetworkName     string `json:"networkName"`
	FinalizedHeight uint64 `json:"finalizedHeight"`
	Head            string `json:"head"`
	LogBlockHeight  uint64 `json:"logBlockHeight"`
	PendingReceipts int    `json:"pendingReceipts"`
	StoredReceipts  int    `json:"storedReceipts"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		NetworkID:       s.rules.NetworkID,
		NetworkName:     s.rules.Name,
		FinalizedHeight: uint64(s.state.Height()),
		Head:            s.state.Head().Hex(),
		LogBlockHeight:  uint64(s.notary.Height()),
		PendingReceipts: s.notary.PendingCount(),
		StoredReceipts:  s.store.ReceiptCount(),
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// miningStatsResponse reports the economics and validator-set view.
type miningStatsResponse struct {
	CumulativeMintMicro uint64 `json:"cumulativeMintMicro"`
	ActiveValidators    int    `json:"activeValidators"`
	TotalStake          string `json:"totalStake"`
	QuorumWeight        uint64 `json:"quorumWeight"`
	SetVersion          uint64 `json:"setVersion"`
	Difficulty          uint64 `json:"difficulty"`
}

func (s *Server) handleMiningStats(w http.ResponseWriter, r *http.Request) {
	snap := s.registry.Snapshot()
	resp := miningStatsResponse{
		CumulativeMintMicro: s.state.CumulativeMint(),
		ActiveValidators:    int(snap.Active.Len()),
		TotalStake:          snap.TotalStake.String(),
		QuorumWeight:        uint64(snap.Active.Quorum()),
		SetVersion:          snap.Version,
		Difficulty:          s.difficulty.Current(),
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// blockResponse is the wire view of a finalized block. Hashes are hex.
type blockResponse struct {
	Height      uint64        `json:"height"`
	ID          string        `json:"id"`
	Parent      string        `json:"parent"`
	Time        uint64        `json:"time"`
	Proposer    uint32        `json:"proposer"`
	Bundles     int           `json:"bundles"`
	Txs         int           `json:"txs"`
	Signers     int           `json:"signers"`
	StakeWeight uint64        `json:"stakeWeight"`
	MintMicro   uint64        `json:"mintMicro"`
	Fees        inter.FeeSplit `json:"fees"`
}

func blockView(b *inter.MinedBlock) blockResponse {
	return blockResponse{
		Height:      uint64(b.Height),
		ID:          b.ID().Hex(),
		Parent:      b.Parent.Hex(),
		Time:        uint64(b.Time),
		Proposer:    uint32(b.Proposer),
		Bundles:     len(b.Bundles),
		Txs:         len(b.Txs),
		Signers:     len(b.Sigs),
		StakeWeight: b.StakeWeight,
		MintMicro:   b.MintMicro,
		Fees:        b.Fees,
	}
}

func (s *Server) handleLatestBlock(w http.ResponseWriter, r *http.Request) {
	b, err := s.store.LatestBlock()
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, blockView(b))
}

func (s *Server) handleBlock(w http.ResponseWriter, r *http.Request) {
	height, err := strconv.ParseUint(chi.URLParam(r, "height"), 10, 64)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid height"})
		return
	}
	b, err := s.store.GetBlock(idx.Block(height))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, blockView(b))
}

// logBlockResponse is the wire view of a sealed log block.
type logBlockResponse struct {
	Height   uint64 `json:"height"`
	ID       string `json:"id"`
	Root     string `json:"root"`
	Receipts uint32 `json:"receipts"`
	From     uint64 `json:"from"`
	To       uint64 `json:"to"`
}

func (s *Server) handleLatestLogBlock(w http.ResponseWriter, r *http.Request) {
	b, err := s.store.LatestLogBlock()
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, logBlockResponse{
		Height:   uint64(b.Height),
		ID:       b.ID().Hex(),
		Root:     b.Root.Hex(),
		Receipts: b.Count,
		From:     uint64(b.Range.From),
		To:       uint64(b.Range.To),
	})
}

// handleMetrics refreshes the pipeline gauges and serves the Prometheus
// exposition. Counters are kept current by their owning stages; gauges are
// snapshots, cheap to recompute per scrape.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	snap := s.registry.Snapshot()
	s.metrics.FinalizedHeight.Set(float64(s.state.Height()))
	s.metrics.LogBlockHeight.Set(float64(s.notary.Height()))
	s.metrics.PendingReceipts.Set(float64(s.notary.PendingCount()))
	s.metrics.ActiveValidators.Set(float64(snap.Active.Len()))
	stake, _ := new(big.Float).SetInt(snap.TotalStake).Float64()
	s.metrics.TotalStake.Set(stake)
	s.metrics.CumulativeMint.Set(float64(s.state.CumulativeMint()))
	s.metrics.Difficulty.Set(float64(s.difficulty.Current()))

	promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}).ServeHTTP(w, r)
}

// instrument counts requests per route and status class.
func (s *Server) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next(sw, r)
		class := fmt.Sprintf("%dxx", sw.status/100)
		s.metrics.RequestsTotal.WithLabelValues(route, class).Inc()
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Warn("failed to write response")
	}
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, ledger.ErrNotFound) {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	s.log.WithError(err).Error("store read failed")
	s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}
