// Package ledger talks to the EVM endpoint and the chain explorer. ABI
// documents come from the explorer's contract endpoint; reads are plain
// eth_call against the latest block.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

type EthClient struct {
	rpc             *ethclient.Client
	http            *http.Client
	explorerURL     string
	defaultContract string
	timeout         time.Duration
}

func Dial(node, explorerURL, defaultContract string, timeout time.Duration) (*EthClient, error) {
	rpc, err := ethclient.Dial(node)
	if err != nil {
		return nil, fmt.Errorf("dial ethereum node: %w", err)
	}
	return &EthClient{
		rpc:             rpc,
		http:            &http.Client{Timeout: timeout},
		explorerURL:     explorerURL,
		defaultContract: defaultContract,
		timeout:         timeout,
	}, nil
}

func (c *EthClient) contractAddr(contract string) common.Address {
	if contract == "" {
		contract = c.defaultContract
	}
	return common.HexToAddress(contract)
}

// ABI fetches the contract's ABI JSON from the explorer. The address falls
// back to the default contract when empty.
func (c *EthClient) ABI(ctx context.Context, contract string) (string, error) {
	addr := contract
	if addr == "" {
		addr = c.defaultContract
	}
	endpoint := fmt.Sprintf("%s?module=contract&action=getabi&address=%s", c.explorerURL, url.QueryEscape(addr))

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch contract abi: %w", err)
	}
	defer res.Body.Close()

	var body struct {
		Status string `json:"status"`
		Result string `json:"result"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode explorer response: %w", err)
	}
	if body.Status != "1" {
		if body.Result != "" {
			return "", fmt.Errorf("explorer: %s", body.Result)
		}
		return "", fmt.Errorf("explorer: failed to get contract abi")
	}
	return body.Result, nil
}

// OwnerOf returns the current owner of a token as a checksummed hex address.
func (c *EthClient) OwnerOf(ctx context.Context, abiJSON, contract, tokenID string) (string, error) {
	id, ok := new(big.Int).SetString(tokenID, 10)
	if !ok {
		return "", fmt.Errorf("invalid token id %q", tokenID)
	}
	out, err := c.call(ctx, abiJSON, contract, "ownerOf", id)
	if err != nil {
		return "", err
	}
	owner, ok := out[0].(common.Address)
	if !ok {
		return "", fmt.Errorf("ownerOf: unexpected return type %T", out[0])
	}
	return owner.Hex(), nil
}

// BalanceOf returns the token balance held by an address.
func (c *EthClient) BalanceOf(ctx context.Context, abiJSON, contract, address string) (*big.Int, error) {
	out, err := c.call(ctx, abiJSON, contract, "balanceOf", common.HexToAddress(address))
	if err != nil {
		return nil, err
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("balanceOf: unexpected return type %T", out[0])
	}
	return balance, nil
}

// TokenURI returns the metadata content URI for a token. The contract
// exposes it through a getTokenURI getter.
func (c *EthClient) TokenURI(ctx context.Context, abiJSON, contract, tokenID string) (string, error) {
	id, ok := new(big.Int).SetString(tokenID, 10)
	if !ok {
		return "", fmt.Errorf("invalid token id %q", tokenID)
	}
	out, err := c.call(ctx, abiJSON, contract, "getTokenURI", id)
	if err != nil {
		return "", err
	}
	uri, ok := out[0].(string)
	if !ok {
		return "", fmt.Errorf("getTokenURI: unexpected return type %T", out[0])
	}
	return uri, nil
}

// FetchMetadata downloads and decodes the token metadata document.
func (c *EthClient) FetchMetadata(ctx context.Context, uri string) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch token metadata: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch token metadata: status %d", res.StatusCode)
	}

	var meta map[string]any
	if err := json.NewDecoder(res.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decode token metadata: %w", err)
	}
	return meta, nil
}

func (c *EthClient) call(ctx context.Context, abiJSON, contract, method string, args ...any) ([]any, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("parse contract abi: %w", err)
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	to := c.contractAddr(contract)
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	raw, err := c.rpc.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	out, err := parsed.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("call %s: empty return", method)
	}
	return out, nil
}
