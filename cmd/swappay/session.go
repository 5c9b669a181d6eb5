package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"swapPay/internal/chain"
	"swapPay/internal/config"
	"swapPay/internal/dex"
	"swapPay/internal/storage"
	"swapPay/internal/storage/postgres"
	"swapPay/internal/swap"
)

// session holds everything a command needs to talk to the chain.
type session struct {
	cfg     config.Config
	logger  *zap.Logger
	client  *chain.Client
	signer  *chain.Signer
	owner   common.Address
	input   *dex.ERC20
	output  *dex.ERC20
	router  *dex.RouterV2
	orch    *swap.Orchestrator
	meta    *dex.TokenMetaCache
	journal storage.Fanout
	pg      *postgres.Store
	json    bool
}

func loadConfig(cmd *cobra.Command, scope config.Scope) (config.Config, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(scope); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// openSession connects to the node and, for scopes above ScopeReceipt, binds
// the contracts and builds the orchestrator.
func openSession(cmd *cobra.Command, scope config.Scope) (*session, error) {
	cfg, err := loadConfig(cmd, scope)
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	jsonOut, _ := cmd.Flags().GetBool("json")

	s := &session{cfg: cfg, logger: logger, meta: dex.NewTokenMetaCache(), json: jsonOut}
	ok := false
	defer func() {
		if !ok {
			s.Close()
		}
	}()

	ctx := cmd.Context()
	s.client, err = chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}

	if err := s.openJournal(ctx); err != nil {
		return nil, err
	}

	if scope == config.ScopeReceipt {
		ok = true
		return s, nil
	}

	if cfg.PrivateKey != "" {
		chainID, err := s.client.GetChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("get chain id: %w", err)
		}
		s.signer, err = chain.NewSigner(cfg.PrivateKey, chainID, cfg.GasLimit)
		if err != nil {
			return nil, err
		}
		s.owner = s.signer.Address()
	} else if cfg.Owner != "" {
		s.owner, err = config.ParseAddress(cfg.Owner)
		if err != nil {
			return nil, err
		}
	}

	if err := s.bind(); err != nil {
		return nil, err
	}

	policy, err := swap.ParseApprovalPolicy(cfg.ApprovalPolicy)
	if err != nil {
		return nil, err
	}
	var destination common.Address
	if cfg.Platform != "" {
		destination, err = config.ParseAddress(cfg.Platform)
		if err != nil {
			return nil, err
		}
	}

	opts := []swap.Option{}
	if len(s.journal) > 0 {
		opts = append(opts, swap.WithJournal(s.journal))
	}
	s.orch, err = swap.New(swap.Config{
		Owner:          s.owner,
		Destination:    destination,
		Deadline:       cfg.Deadline,
		ApprovalPolicy: policy,
		MaxRetries:     cfg.MaxRetries,
		RetryBackoff:   cfg.RetryBackoff,
		ConfirmTimeout: cfg.ConfirmTimeout,
	}, swap.Contracts{
		Router:    s.router,
		Input:     s.input,
		Output:    s.output,
		Confirmer: s.client,
	}, logger, opts...)
	if err != nil {
		return nil, err
	}

	logger.Debug("session ready",
		zap.String("rpc", cfg.RPCURL),
		zap.String("owner", s.owner.Hex()),
		zap.String("router", cfg.Router),
		zap.String("input_token", cfg.InputToken),
		zap.String("stable_token", cfg.StableToken),
		zap.Bool("can_sign", s.signer != nil),
	)

	ok = true
	return s, nil
}

func (s *session) bind() error {
	routerAddr, err := config.ParseAddress(s.cfg.Router)
	if err != nil {
		return err
	}
	inputAddr, err := config.ParseAddress(s.cfg.InputToken)
	if err != nil {
		return err
	}
	stableAddr, err := config.ParseAddress(s.cfg.StableToken)
	if err != nil {
		return err
	}

	backend := s.client.Backend()
	if s.router, err = dex.NewRouterV2(routerAddr, s.client, backend, s.signer); err != nil {
		return err
	}
	if s.input, err = dex.NewERC20(inputAddr, s.client, backend, s.signer); err != nil {
		return err
	}
	if s.output, err = dex.NewERC20(stableAddr, s.client, backend, s.signer); err != nil {
		return err
	}
	return nil
}

func (s *session) openJournal(ctx context.Context) error {
	if s.cfg.Out != "" {
		s.journal = append(s.journal, storage.NewJsonlStorage(s.cfg.Out))
	}
	if s.cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, s.cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return fmt.Errorf("ensure payments schema: %w", err)
		}
		s.pg = store
		s.journal = append(s.journal, store)
	}
	return nil
}

// tokenLabel returns the token symbol, or its address if metadata is
// unavailable.
func (s *session) tokenLabel(ctx context.Context, token common.Address) string {
	meta, err := s.meta.Lookup(ctx, s.client, token, s.logger)
	if err != nil {
		return token.Hex()
	}
	return meta.Label()
}

func (s *session) Close() {
	if s.pg != nil {
		s.pg.Close()
	}
	if s.client != nil {
		s.client.Close()
	}
	if s.logger != nil {
		_ = s.logger.Sync()
	}
}
