package payqueue

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestGetChainConfig(t *testing.T) {
	tests := []struct {
		name    string
		network string
		wantID  int64
		wantErr bool
	}{
		{name: "base mainnet", network: NetworkBase, wantID: 8453},
		{name: "ethereum mainnet", network: NetworkEthereum, wantID: 1},
		{name: "base sepolia", network: NetworkBaseSepolia, wantID: 84532},
		{name: "unknown network", network: "eip155:999999", wantErr: true},
		{name: "solana not supported", network: "solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp", wantErr: true},
		{name: "empty", network: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := GetChainConfig(tt.network)
			if (err != nil) != tt.wantErr {
				t.Fatalf("GetChainConfig(%q) error = %v, wantErr %v", tt.network, err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidChainID) {
					t.Errorf("error = %v, want ErrInvalidChainID", err)
				}
				return
			}
			if cfg.ChainID.Int64() != tt.wantID {
				t.Errorf("ChainID = %s, want %d", cfg.ChainID, tt.wantID)
			}
			if cfg.Collateral == (common.Address{}) {
				t.Error("Collateral is zero")
			}
		})
	}
}

func TestChainIDFromNetwork(t *testing.T) {
	tests := []struct {
		name    string
		network string
		want    int64
		wantErr bool
	}{
		{name: "valid", network: "eip155:1337", want: 1337},
		{name: "known mainnet", network: NetworkPolygon, want: 137},
		{name: "not evm", network: "solana:EtWTRABZaYq6iMfeYKouRu166VU2xqa1", wantErr: true},
		{name: "missing reference", network: "eip155", wantErr: true},
		{name: "non-numeric reference", network: "eip155:abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := ChainIDFromNetwork(tt.network)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ChainIDFromNetwork(%q) error = %v, wantErr %v", tt.network, err, tt.wantErr)
			}
			if !tt.wantErr && id.Int64() != tt.want {
				t.Errorf("ChainIDFromNetwork(%q) = %s, want %d", tt.network, id, tt.want)
			}
		})
	}
}
