// Command payqueue-server runs a manual-execution queue payment processor
// behind the HTTP operator surface.
//
// Configuration is taken from the environment:
//
//	PAYQUEUE_LISTEN       listen address (default ":8080")
//	PAYQUEUE_NETWORK      CAIP-2 network, e.g. "eip155:84532" (required)
//	PAYQUEUE_RPC_URL      EVM JSON-RPC endpoint (required)
//	PAYQUEUE_KEY          hex private key for the processor account (required)
//	PAYQUEUE_ORCHESTRATOR orchestrator address (required)
//	PAYQUEUE_OPERATOR     queue operator address (required)
//	PAYQUEUE_MODULES      comma-separated registered module addresses
//	PAYQUEUE_DB           sqlite path; empty runs in-memory
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/sync/errgroup"

	payqueue "github.com/quorumlabs/payqueue-go"
	pqhttp "github.com/quorumlabs/payqueue-go/http"
	"github.com/quorumlabs/payqueue-go/store/sqlite"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	if err := run(logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chain, err := payqueue.GetChainConfig(requireEnv("PAYQUEUE_NETWORK"))
	if err != nil {
		return err
	}

	client, err := ethclient.DialContext(ctx, requireEnv("PAYQUEUE_RPC_URL"))
	if err != nil {
		return fmt.Errorf("dialing rpc: %w", err)
	}
	defer client.Close()

	key, err := crypto.HexToECDSA(strings.TrimPrefix(requireEnv("PAYQUEUE_KEY"), "0x"))
	if err != nil {
		return fmt.Errorf("parsing key: %w", err)
	}
	auth, err := bind.NewKeyedTransactorWithChainID(key, chain.ChainID)
	if err != nil {
		return fmt.Errorf("creating transactor: %w", err)
	}

	backend, err := payqueue.NewEVMBackend(client, auth)
	if err != nil {
		return err
	}

	var store payqueue.ProcessorStore
	if path := os.Getenv("PAYQUEUE_DB"); path != "" {
		dbStore, err := sqlite.New(path)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer dbStore.Close()
		store = dbStore
	} else {
		store = payqueue.NewMemoryStore()
	}

	operator := common.HexToAddress(requireEnv("PAYQUEUE_OPERATOR"))
	registry := payqueue.StaticModuleRegistry{}
	for _, raw := range strings.Split(os.Getenv("PAYQUEUE_MODULES"), ",") {
		if raw = strings.TrimSpace(raw); raw != "" {
			registry[common.HexToAddress(raw)] = true
		}
	}

	processor, err := payqueue.NewManualQueueProcessor(payqueue.ProcessorConfig{
		Address:      auth.From,
		Orchestrator: common.HexToAddress(requireEnv("PAYQUEUE_ORCHESTRATOR")),
		Chain:        chain,
		Registry:     registry,
		Roles:        payqueue.StaticRoleAuthorizer{payqueue.QueueOperatorRole: {operator}},
		Backend:      backend,
		Store:        store,
		Callback: func(ev payqueue.OrderEvent) {
			logger.Info("order event",
				"type", string(ev.Type),
				"client", ev.Client.Hex(),
				"order_id", ev.OrderID,
				"processed", ev.Processed,
				"error", ev.Error)
		},
	})
	if err != nil {
		return err
	}

	api := pqhttp.NewServer(pqhttp.Config{Operator: operator, Logger: logger}, processor)

	listen := os.Getenv("PAYQUEUE_LISTEN")
	if listen == "" {
		listen = ":8080"
	}
	srv := &http.Server{Addr: listen, Handler: api.Handler()}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", listen, "network", chain.Network)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func requireEnv(name string) string {
	v := os.Getenv(name)
	if v == "" {
		fmt.Fprintf(os.Stderr, "missing required environment variable %s\n", name)
		os.Exit(1)
	}
	return v
}
