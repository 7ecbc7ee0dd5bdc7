// Package enrich adds secondary-source fields to merged records.
package enrich

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"solana-token-feed/internal/domain"
)

// ReferenceMap maps identity keys to CoinGecko coin ids.
type ReferenceMap map[string]string

// DefaultReferenceMap covers the majors that CoinGecko tracks by id.
func DefaultReferenceMap() ReferenceMap {
	return ReferenceMap{
		domain.IdentityKey("So11111111111111111111111111111111111111112"):  "solana",
		domain.IdentityKey("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"): "usd-coin",
		domain.IdentityKey("Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"): "tether",
		domain.IdentityKey("DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"): "bonk",
		domain.IdentityKey("JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN"):  "jupiter-exchange-solana",
		domain.IdentityKey("EKpQGSJtjMFqKZ9KQanSqYXRcF8fBopzLHYxdM65zcjm"): "dogwifcoin",
		domain.IdentityKey("4k3Dyjzvzp8eMZWUXbBCjEvwSkkk59S5iCNLY3QrkX6R"): "raydium",
	}
}

// referenceFile is the on-disk layout:
//
//	tokens:
//	  <mint address>: <coingecko id>
type referenceFile struct {
	Tokens map[string]string `yaml:"tokens"`
}

// LoadReferenceMap reads a mapping file. An empty path returns the defaults.
// File entries are added on top of the defaults.
func LoadReferenceMap(path string) (ReferenceMap, error) {
	m := DefaultReferenceMap()
	if path == "" {
		return m, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reference map: %w", err)
	}

	var f referenceFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse reference map %s: %w", path, err)
	}

	for addr, id := range f.Tokens {
		key := domain.IdentityKey(addr)
		id = strings.TrimSpace(id)
		if key == "" || id == "" {
			continue
		}
		m[key] = id
	}
	return m, nil
}

// Lookup returns the coin id for key.
func (m ReferenceMap) Lookup(key string) (string, bool) {
	id, ok := m[domain.IdentityKey(key)]
	return id, ok
}
