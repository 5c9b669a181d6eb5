package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer holds the account key used to authorize transactions.
type Signer struct {
	key      *ecdsa.PrivateKey
	address  common.Address
	chainID  *big.Int
	gasLimit uint64
}

// NewSigner parses a hex private key (with or without 0x prefix).
// A zero gasLimit lets the node estimate gas for every transaction.
func NewSigner(privateKeyHex string, chainID *big.Int, gasLimit uint64) (*Signer, error) {
	if chainID == nil {
		return nil, fmt.Errorf("chain id is required")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	return &Signer{
		key:      key,
		address:  crypto.PubkeyToAddress(key.PublicKey),
		chainID:  new(big.Int).Set(chainID),
		gasLimit: gasLimit,
	}, nil
}

// Address returns the account address derived from the key.
func (s *Signer) Address() common.Address { return s.address }

// ChainID returns the chain the signer signs for.
func (s *Signer) ChainID() *big.Int { return new(big.Int).Set(s.chainID) }

// TransactOpts builds fresh options for a single transaction.
func (s *Signer) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(s.key, s.chainID)
	if err != nil {
		return nil, fmt.Errorf("create transactor: %w", err)
	}
	opts.Context = ctx
	opts.GasLimit = s.gasLimit
	return opts, nil
}
