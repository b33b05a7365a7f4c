package payqueue

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// CAIP-2 network identifiers for supported EVM chains.
const (
	// Mainnets
	NetworkEthereum  = "eip155:1"
	NetworkBase      = "eip155:8453"
	NetworkPolygon   = "eip155:137"
	NetworkAvalanche = "eip155:43114"

	// Testnets
	NetworkSepolia     = "eip155:11155111"
	NetworkBaseSepolia = "eip155:84532"
)

// ChainConfig holds configuration for a specific chain a processor settles on.
type ChainConfig struct {
	// Network is the CAIP-2 network identifier.
	Network string

	// ChainID is the EIP-155 chain ID. Orders must carry it as both origin and
	// target for same-chain settlement.
	ChainID *big.Int

	// Collateral is the primary collateral token (USDC) on the chain. Payment
	// recipients may never be the collateral token address itself.
	Collateral common.Address

	// Decimals is the number of decimal places for the collateral token.
	Decimals uint8
}

// Predefined chain configurations.
var (
	// EthereumMainnet is the configuration for Ethereum mainnet.
	// USDC address verified 2025-10-28.
	EthereumMainnet = ChainConfig{
		Network:    NetworkEthereum,
		ChainID:    big.NewInt(1),
		Collateral: common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
		Decimals:   6,
	}

	// BaseMainnet is the configuration for Base mainnet.
	// USDC address verified 2025-10-28.
	BaseMainnet = ChainConfig{
		Network:    NetworkBase,
		ChainID:    big.NewInt(8453),
		Collateral: common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"),
		Decimals:   6,
	}

	// PolygonMainnet is the configuration for Polygon PoS mainnet.
	// USDC address verified 2025-10-28.
	PolygonMainnet = ChainConfig{
		Network:    NetworkPolygon,
		ChainID:    big.NewInt(137),
		Collateral: common.HexToAddress("0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359"),
		Decimals:   6,
	}

	// AvalancheMainnet is the configuration for Avalanche C-Chain mainnet.
	// USDC address verified 2025-10-28.
	AvalancheMainnet = ChainConfig{
		Network:    NetworkAvalanche,
		ChainID:    big.NewInt(43114),
		Collateral: common.HexToAddress("0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E"),
		Decimals:   6,
	}

	// Sepolia is the configuration for Ethereum Sepolia testnet.
	// USDC address verified 2025-10-28.
	Sepolia = ChainConfig{
		Network:    NetworkSepolia,
		ChainID:    big.NewInt(11155111),
		Collateral: common.HexToAddress("0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238"),
		Decimals:   6,
	}

	// BaseSepolia is the configuration for Base Sepolia testnet.
	// USDC address verified 2025-10-30.
	BaseSepolia = ChainConfig{
		Network:    NetworkBaseSepolia,
		ChainID:    big.NewInt(84532),
		Collateral: common.HexToAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e"),
		Decimals:   6,
	}
)

// chainConfigByNetwork maps CAIP-2 network identifiers to chain configurations.
var chainConfigByNetwork = map[string]ChainConfig{
	NetworkEthereum:    EthereumMainnet,
	NetworkBase:        BaseMainnet,
	NetworkPolygon:     PolygonMainnet,
	NetworkAvalanche:   AvalancheMainnet,
	NetworkSepolia:     Sepolia,
	NetworkBaseSepolia: BaseSepolia,
}

// GetChainConfig returns the chain configuration for a CAIP-2 network
// identifier. Returns an error if the network is not recognized.
func GetChainConfig(network string) (ChainConfig, error) {
	config, ok := chainConfigByNetwork[network]
	if !ok {
		return ChainConfig{}, fmt.Errorf("%w: unknown network %s", ErrInvalidChainID, network)
	}
	return config, nil
}

// ChainIDFromNetwork extracts the chain ID from a CAIP-2 EVM network
// identifier. Returns an error if the identifier is not an eip155 network.
func ChainIDFromNetwork(network string) (*big.Int, error) {
	parts := strings.SplitN(network, ":", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("%w: invalid CAIP-2 format: %s", ErrInvalidChainID, network)
	}
	if parts[0] != "eip155" {
		return nil, fmt.Errorf("%w: not an EVM network: %s", ErrInvalidChainID, network)
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid chain id: %s", ErrInvalidChainID, parts[1])
	}
	return big.NewInt(id), nil
}
