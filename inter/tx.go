package inter

import (
	"crypto/ecdsa"
	"errors"
	"math/big"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

var (
	// ErrBadSignature is returned when a signature fails to recover or
	// recovers to the wrong address.
	ErrBadSignature = errors.New("invalid signature")
)

// Transaction is a simple micro-token transfer carried inside mined blocks.
type Transaction struct {
	Nonce       uint64
	From        common.Address
	To          common.Address
	AmountMicro uint64
	FeeMicro    uint64
	Sig         Signature
}

type txPreimage struct {
	Nonce       uint64
	From        common.Address
	To          common.Address
	AmountMicro uint64
	FeeMicro    uint64
}

// SigningHash is the digest the sender signs.
func (tx *Transaction) SigningHash() hash.Hash {
	raw, err := rlp.EncodeToBytes(&txPreimage{
		Nonce:       tx.Nonce,
		From:        tx.From,
		To:          tx.To,
		AmountMicro: tx.AmountMicro,
		FeeMicro:    tx.FeeMicro,
	})
	if err != nil {
		panic("can't hash: " + err.Error())
	}
	return DomainHash(TxDomain, raw)
}

// ID is the canonical identifier of the transaction.
func (tx *Transaction) ID() hash.Hash {
	return tx.SigningHash()
}

// Cost returns amount+fee as a big integer, avoiding uint64 overflow.
func (tx *Transaction) Cost() *big.Int {
	cost := new(big.Int).SetUint64(tx.AmountMicro)
	return cost.Add(cost, new(big.Int).SetUint64(tx.FeeMicro))
}

// Sign computes the sender signature with the given secp256k1 key.
func (tx *Transaction) Sign(key *ecdsa.PrivateKey) error {
	sig, err := crypto.Sign(tx.SigningHash().Bytes(), key)
	if err != nil {
		return err
	}
	tx.Sig = BytesToSignature(sig)
	return nil
}

// CheckSig verifies that Sig recovers to the From address.
func (tx *Transaction) CheckSig() error {
	pub, err := crypto.SigToPub(tx.SigningHash().Bytes(), tx.Sig.Bytes())
	if err != nil {
		return ErrBadSignature
	}
	if crypto.PubkeyToAddress(*pub) != tx.From {
		return ErrBadSignature
	}
	return nil
}

// EstimateSize returns an approximate size of the transaction in bytes.
func (tx *Transaction) EstimateSize() int {
	return 8 + 20 + 20 + 8 + 8 + SigSize
}
