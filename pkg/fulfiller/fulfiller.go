package fulfiller

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/redis/go-redis/v9"
	"github.com/speedrun-hq/portal-solver/pkg/address"
	"github.com/speedrun-hq/portal-solver/pkg/blockchain"
	"github.com/speedrun-hq/portal-solver/pkg/chainclient"
	"github.com/speedrun-hq/portal-solver/pkg/chaintype"
	"github.com/speedrun-hq/portal-solver/pkg/circuitbreaker"
	"github.com/speedrun-hq/portal-solver/pkg/config"
	"github.com/speedrun-hq/portal-solver/pkg/fee"
	"github.com/speedrun-hq/portal-solver/pkg/health"
	"github.com/speedrun-hq/portal-solver/pkg/intent"
	"github.com/speedrun-hq/portal-solver/pkg/logger"
	"github.com/speedrun-hq/portal-solver/pkg/prover"
	"github.com/speedrun-hq/portal-solver/pkg/queue"
	"github.com/speedrun-hq/portal-solver/pkg/repository"
	"github.com/speedrun-hq/portal-solver/pkg/svm"
	"github.com/speedrun-hq/portal-solver/pkg/tvm"
	"github.com/speedrun-hq/portal-solver/pkg/txbuilder"
	"github.com/speedrun-hq/portal-solver/pkg/watcher"
)

// defaultChainMaxGas defines starting per-chain gas price caps in wei
var defaultChainMaxGas = map[uint64]string{
	1:     "150000000000", // Ethereum: 150 gwei
	10:    "5000000000",   // Optimism: 5 gwei
	137:   "100000000000", // Polygon: 100 gwei
	42161: "5000000000",   // Arbitrum: 5 gwei
	8453:  "5000000000",   // Base: 5 gwei
}

// chainSet is everything built from the chain configuration
type chainSet struct {
	solvers map[uint64]*intent.Solver
	sources []watcher.Source
	pools   map[uint64]*intent.Pool
	// provers classifies the reward provers of the source chains
	provers prover.StaticSource
	health  map[uint64]health.Chain
	clients map[uint64]*chainclient.Client
	closers []func()
}

func newChainSet() *chainSet {
	return &chainSet{
		solvers: make(map[uint64]*intent.Solver),
		pools:   make(map[uint64]*intent.Pool),
		provers: make(prover.StaticSource),
		health:  make(map[uint64]health.Chain),
		clients: make(map[uint64]*chainclient.Client),
	}
}

// Fulfiller runs the intent pipeline and its supporting routines
type Fulfiller struct {
	config          *config.Config
	repo            repository.IntentRepository
	queue           queue.Queue
	pipeline        *intent.Pipeline
	crowd           *intent.CrowdLiquidity
	watcher         *watcher.Watcher
	rescanner       *intent.Rescanner
	refresher       *prover.Refresher
	metrics         *MetricsManager
	chains          *chainSet
	circuitBreakers map[uint64]*circuitbreaker.CircuitBreaker
	logger          logger.Logger
	wg              sync.WaitGroup
}

// NewFulfiller connects to the configured chains, storage and queue backends
// and wires the pipeline over them
func NewFulfiller(ctx context.Context, cfg *config.Config) (*Fulfiller, error) {
	stdLogger := logger.NewStdLogger(cfg.LoggerConfig.Coloring, cfg.LoggerConfig.Level)

	if cfg.Claimant.IsZero() {
		key, err := crypto.HexToECDSA(trimHexPrefix(cfg.PrivateKey))
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %v", err)
		}
		cfg.Claimant = address.FromEVM(crypto.PubkeyToAddress(key.PublicKey))
	}

	repo, err := newRepository(cfg)
	if err != nil {
		return nil, err
	}
	q, err := newQueue(cfg, stdLogger)
	if err != nil {
		return nil, err
	}

	chains, err := dialChains(ctx, cfg, stdLogger)
	if err != nil {
		_ = q.Close()
		return nil, err
	}

	return newFulfiller(cfg, repo, q, chains, stdLogger), nil
}

// newFulfiller wires the pipeline over already connected chains
func newFulfiller(cfg *config.Config, repo repository.IntentRepository, q queue.Queue, chains *chainSet, log logger.Logger) *Fulfiller {
	jobOptions := queue.Options{Attempts: cfg.MaxRetries, Backoff: cfg.RetryBackoff}

	holder := prover.NewHolder(prover.NewSnapshot(chains.provers))

	var opts []intent.Option
	if len(cfg.BendWallets) > 0 {
		opts = append(opts, intent.WithWalletGate(intent.NewAllowListGate(cfg.BendWallets...)))
	}

	var crowd *intent.CrowdLiquidity
	if cfg.CrowdLiquidity.Enabled && len(chains.pools) > 0 {
		supported := make(map[uint64][]address.Address, len(chains.solvers))
		for chainID, solver := range chains.solvers {
			for token := range solver.Targets {
				supported[chainID] = append(supported[chainID], token)
			}
		}
		crowd = intent.NewCrowdLiquidity(intent.CrowdLiquidityConfig{
			FeePercentage:   cfg.CrowdLiquidity.FeePercentage,
			SupportedTokens: supported,
		}, chains.pools, log)
		opts = append(opts, intent.WithCrowdLiquidity(crowd))
	}

	pipeline := intent.NewPipeline(
		intent.Config{
			FundedRetries:    cfg.FundedRetries,
			FundedRetryDelay: cfg.FundedRetryDelay,
			Claimant:         cfg.Claimant,
			Mode:             txbuilder.FulfillMode(cfg.FulfillMode),
			NativeEnabled:    cfg.NativeEnabled,
			JobOptions:       jobOptions,
		},
		repo,
		q,
		chains.solvers,
		holder,
		fee.NewProportionalOracle(cfg.FeePermille, cfg.TransferLimit),
		log,
		opts...,
	)

	// Initialize circuit breakers
	circuitBreakers := make(map[uint64]*circuitbreaker.CircuitBreaker, len(chains.solvers))
	for chainID := range chains.solvers {
		circuitBreakers[chainID] = circuitbreaker.NewCircuitBreaker(
			chainID,
			cfg.CircuitBreaker.Enabled,
			cfg.CircuitBreaker.Threshold,
			cfg.CircuitBreaker.WindowDuration,
			cfg.CircuitBreaker.ResetTimeout,
			log,
		)
	}

	return &Fulfiller{
		config:   cfg,
		repo:     repo,
		queue:    q,
		pipeline: pipeline,
		crowd:    crowd,
		watcher: watcher.New(watcher.Config{
			Interval:      cfg.PollingInterval,
			BlockRange:    cfg.WatcherBlockRange,
			Confirmations: cfg.WatcherConfirmations,
			JobOptions:    jobOptions,
		}, chains.sources, q, log),
		rescanner:       intent.NewRescanner(pipeline, cfg.RescanInterval, 0),
		refresher:       prover.NewRefresher(holder, chains.provers, cfg.ProverRefreshInterval, log),
		metrics:         NewMetricsManager(repo, chains.solvers, log),
		chains:          chains,
		circuitBreakers: circuitBreakers,
		logger:          log,
	}
}

// Start runs the service until ctx is cancelled
func (s *Fulfiller) Start(ctx context.Context) {
	defer s.Close()

	// Start health monitoring server
	checks := map[string]health.Pinger{"repository": s.repo, "queue": s.queue}
	healthServer := health.NewServer(s.config.MetricsPort, s.chains.health, s.circuitBreakers, checks, s.logger)
	s.goRoutine(func() { healthServer.Start(ctx) })

	// Start gas price routines
	for _, client := range s.chains.clients {
		routine := chainclient.NewGasPriceRoutine(client, DefaultMetricsInterval)
		routine.Start(ctx)
		defer routine.Stop()
	}

	if s.crowd != nil {
		s.crowd.Start()
		defer s.crowd.Stop()
	}

	s.refresher.Start(ctx)
	defer s.refresher.Stop()

	// Start worker pools
	s.logger.Notice("Starting worker pools with %d workers per queue", s.config.WorkerCount)
	for name, handler := range s.handlers() {
		name, handler := name, handler
		s.goRoutine(func() {
			if err := s.queue.Process(ctx, name, s.config.WorkerCount, handler); err != nil && ctx.Err() == nil {
				s.logger.Error("Queue %s stopped: %v", name, err)
			}
		})
	}

	s.rescanner.Start(ctx)
	defer s.rescanner.Stop()

	s.goRoutine(func() { s.metrics.StartMetricsUpdater(ctx, DefaultMetricsInterval) })

	s.logger.Info("Starting portal watcher with polling interval %v", s.config.PollingInterval)
	s.watcher.Start(ctx)
	defer s.watcher.Stop()

	<-ctx.Done()
	s.logger.Notice("Context cancelled, shutting down service")
	s.wg.Wait() // Wait for all workers to finish
}

// Close releases the chain connections and the queue
func (s *Fulfiller) Close() {
	for _, closer := range s.chains.closers {
		closer()
	}
	if err := s.queue.Close(); err != nil {
		s.logger.Error("Failed to close queue: %v", err)
	}
}

func (s *Fulfiller) goRoutine(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

func newRepository(cfg *config.Config) (repository.IntentRepository, error) {
	if cfg.DatabaseURL == "" {
		return repository.NewMemoryRepository(), nil
	}
	repo, err := repository.OpenPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open intent repository: %w", err)
	}
	return repo, nil
}

func newQueue(cfg *config.Config, log logger.Logger) (queue.Queue, error) {
	if cfg.RedisURL == "" {
		return queue.NewMemoryQueue(log, 0), nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	q, err := queue.NewRedisQueue(queue.RedisConfig{
		Address:  opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return q, nil
}

// dialChains connects to every configured chain and builds its solver
func dialChains(ctx context.Context, cfg *config.Config, log logger.Logger) (*chainSet, error) {
	set := newChainSet()
	nonces := blockchain.NewNonceManager(log)

	fail := func(err error) (*chainSet, error) {
		for _, closer := range set.closers {
			closer()
		}
		return nil, err
	}

	for chainID, chainConfig := range cfg.Chains {
		if err := dialEVM(ctx, cfg, chainConfig, nonces, set, log); err != nil {
			return fail(fmt.Errorf("failed to create chain client for chain %d: %v", chainID, err))
		}
	}
	if cfg.Solana != nil {
		if err := dialSolana(ctx, cfg.Solana, set); err != nil {
			return fail(fmt.Errorf("failed to create solana client: %v", err))
		}
	}
	if cfg.Tron != nil {
		if err := dialTron(cfg.Tron, set, log); err != nil {
			return fail(fmt.Errorf("failed to create tron client: %v", err))
		}
	}
	return set, nil
}

// effectiveMaxGas returns the chain cap, the baked-in default of the chain or the global cap
func effectiveMaxGas(cfg *config.Config, chainConfig config.ChainConfig) *big.Int {
	if chainConfig.MaxGasPrice != nil {
		return chainConfig.MaxGasPrice
	}
	if def, ok := defaultChainMaxGas[chainConfig.ChainID]; ok {
		if parsed, ok := new(big.Int).SetString(def, 10); ok {
			return parsed
		}
	}
	return cfg.MaxGasPrice
}

func targetsOf(tokens []address.Address, maxBalance *big.Int) map[address.Address]intent.Target {
	targets := make(map[address.Address]intent.Target, len(tokens))
	for _, token := range tokens {
		targets[token] = intent.Target{MaxBalance: maxBalance}
	}
	return targets
}

func dialEVM(ctx context.Context, cfg *config.Config, chainConfig config.ChainConfig, nonces *blockchain.NonceManager, set *chainSet, log logger.Logger) error {
	clientConfig := chainclient.Config{
		ChainID:       chainConfig.ChainID,
		RPCURL:        chainConfig.RPCURL,
		PortalAddress: chainConfig.PortalAddress,
		KernelAddress: chainConfig.KernelAddress,
		MaxGasPrice:   effectiveMaxGas(cfg, chainConfig),
	}
	client, err := chainclient.New(ctx, clientConfig, cfg.PrivateKey, nonces, log)
	if err != nil {
		return err
	}
	set.closers = append(set.closers, client.Close)
	set.clients[chainConfig.ChainID] = client

	startBlock := chainConfig.StartBlock
	if startBlock == 0 {
		if startBlock, err = client.GetLatestBlockNumber(ctx); err != nil {
			return err
		}
	}

	balances := &evmBalances{client: client}
	builder := txbuilder.NewEVMBuilder(chainConfig.HyperProver, client)
	set.solvers[chainConfig.ChainID] = &intent.Solver{
		ChainID:   chainConfig.ChainID,
		VM:        chaintype.EVM,
		Targets:   targetsOf(chainConfig.Targets, chainConfig.MaxBalance),
		NativeMax: chainConfig.NativeMax,
		Builder:   builder,
		Executor:  &txbuilder.EVMExecutor{Sender: client},
		Funding:   client,
		Balances:  balances,
	}
	set.sources = append(set.sources, watcher.Source{
		ChainID:    chainConfig.ChainID,
		Portal:     chainConfig.PortalAddress,
		Reader:     client.Backend,
		StartBlock: startBlock,
	})
	if chainConfig.HyperProver != (common.Address{}) {
		set.provers[address.FromEVM(chainConfig.HyperProver)] = prover.Hyperlane
	}
	if chainConfig.StorageProver != (common.Address{}) {
		set.provers[address.FromEVM(chainConfig.StorageProver)] = prover.Storage
	}
	set.health[chainConfig.ChainID] = health.Chain{
		ChainID:  chainConfig.ChainID,
		VM:       string(chaintype.EVM),
		Endpoint: chainConfig.RPCURL,
		Portal:   chainConfig.PortalAddress.Hex(),
		Reader:   balances,
		Balances: balances,
		Targets:  chainConfig.Targets,
	}

	if !cfg.CrowdLiquidity.Enabled || chainConfig.CrowdLiquidityPool == (common.Address{}) {
		return nil
	}

	// the pool executes through its own Kernel account, signed by the solver key
	key, err := crypto.HexToECDSA(trimHexPrefix(cfg.PrivateKey))
	if err != nil {
		return fmt.Errorf("failed to parse private key: %v", err)
	}
	poolConfig := clientConfig
	poolConfig.KernelAddress = chainConfig.CrowdLiquidityPool
	poolClient, err := chainclient.NewWithBackend(ctx, poolConfig, client.Backend, key, nonces, log)
	if err != nil {
		return err
	}
	feePercentage := chainConfig.FeePercentage
	if feePercentage == 0 {
		feePercentage = cfg.CrowdLiquidity.FeePercentage
	}
	set.pools[chainConfig.ChainID] = &intent.Pool{
		Address:  address.FromEVM(chainConfig.CrowdLiquidityPool),
		Balances: balances,
		Fees:     staticPoolFee(feePercentage),
		Builder:  builder,
		Executor: &txbuilder.EVMExecutor{Sender: poolClient},
	}
	return nil
}

func dialSolana(ctx context.Context, cfg *config.SolanaConfig, set *chainSet) error {
	key, err := svm.ParseKeypair(cfg.PrivateKey)
	if err != nil {
		return err
	}
	program := svm.DefaultPortalProgramID
	if cfg.PortalProgram != "" {
		if program, err = svm.ParsePublicKey(cfg.PortalProgram); err != nil {
			return fmt.Errorf("invalid SOLANA_PORTAL_PROGRAM: %w", err)
		}
	}
	client, err := svm.Dial(ctx, svm.ClientConfig{URL: cfg.RPCURL, RequestsPerSecond: cfg.RequestsPerSecond})
	if err != nil {
		return err
	}
	set.closers = append(set.closers, client.Close)

	chainID := chaintype.SolanaMainnetChainID
	solver := svm.PublicKeyOf(key)
	balances := &svmBalances{client: client, solver: solver}
	set.solvers[chainID] = &intent.Solver{
		ChainID:  chainID,
		VM:       chaintype.SVM,
		Targets:  targetsOf(cfg.Targets, nil),
		Builder:  txbuilder.NewSVMBuilder(program, solver, client),
		Executor: &txbuilder.SVMExecutor{Sender: client, ChainID: chainID, Payer: key},
		Balances: balances,
	}
	set.health[chainID] = health.Chain{
		ChainID:  chainID,
		VM:       string(chaintype.SVM),
		Endpoint: cfg.RPCURL,
		Portal:   program.String(),
		Reader:   client,
		Balances: balances,
		Targets:  cfg.Targets,
	}
	return nil
}

func dialTron(cfg *config.TronConfig, set *chainSet, log logger.Logger) error {
	key, err := crypto.HexToECDSA(trimHexPrefix(cfg.PrivateKey))
	if err != nil {
		return fmt.Errorf("failed to parse tron private key: %v", err)
	}
	var localProver common.Address
	if !cfg.HyperProver.IsZero() {
		if localProver, err = cfg.HyperProver.EVM(); err != nil {
			return err
		}
	}
	client := tvm.New(tvm.Config{URL: cfg.APIURL, APIKey: cfg.APIKey, FeeLimit: tvm.DefaultFeeLimit}, key, log)

	chainID := chaintype.TronMainnetChainID
	balances := &tvmBalances{caller: client, owner: client.Owner()}
	set.solvers[chainID] = &intent.Solver{
		ChainID:  chainID,
		VM:       chaintype.TVM,
		Targets:  targetsOf(cfg.Targets, nil),
		Builder:  txbuilder.NewTVMBuilder(localProver, &txbuilder.TVMFeeQuoter{Caller: client}),
		Executor: &txbuilder.TVMExecutor{Sender: client, ChainID: chainID},
		Balances: balances,
	}
	portal, _ := cfg.PortalAddress.Tron()
	set.health[chainID] = health.Chain{
		ChainID:  chainID,
		VM:       string(chaintype.TVM),
		Endpoint: cfg.APIURL,
		Portal:   portal,
		Reader:   client,
		Balances: balances,
		Targets:  cfg.Targets,
	}
	return nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
