// Package entitle decides whether an identity's addresses satisfy a role's
// conditions. The evaluator owns the two short-lived external-data caches.
package entitle

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"tokengate/internal/model"
	"tokengate/internal/registry"
)

const (
	cacheTTL     = 5 * time.Minute
	cacheCleanup = 10 * time.Minute
)

// Ledger is the chain surface the evaluator consumes.
type Ledger interface {
	ABI(ctx context.Context, contract string) (string, error)
	OwnerOf(ctx context.Context, abiJSON, contract, tokenID string) (string, error)
	BalanceOf(ctx context.Context, abiJSON, contract, address string) (*big.Int, error)
	TokenURI(ctx context.Context, abiJSON, contract, tokenID string) (string, error)
	FetchMetadata(ctx context.Context, uri string) (map[string]any, error)
}

// Registry looks up identity-registry records.
type Registry interface {
	Record(ctx context.Context, version, organization, address string) (registry.Record, error)
}

type Evaluator struct {
	ledger   Ledger
	registry Registry
	log      *zap.SugaredLogger

	// abiCache keys by contract address, metaCache by token id. Entries
	// expire on the freshness window only; role changes never invalidate
	// them.
	abiCache  *cache.Cache
	metaCache *cache.Cache
}

func New(ledger Ledger, reg Registry, log *zap.SugaredLogger) *Evaluator {
	return &Evaluator{
		ledger:    ledger,
		registry:  reg,
		log:       log,
		abiCache:  cache.New(cacheTTL, cacheCleanup),
		metaCache: cache.New(cacheTTL, cacheCleanup),
	}
}

// Entitled evaluates a role's conditions against one identity's addresses.
// Later configured conditions override the verdict of earlier ones; deleted
// forces false without touching external data. External call failures
// propagate so the caller can decide to skip or abort.
func (e *Evaluator) Entitled(ctx context.Context, role model.Role, contract string, holders []model.Holder, deleted bool) (bool, error) {
	if deleted {
		return false, nil
	}

	entitled := false

	if role.HasTokenID() {
		owner, err := e.tokenOwner(ctx, contract, role.TokenID)
		if err != nil {
			return false, err
		}
		for _, h := range holders {
			if strings.EqualFold(h.EthAddress, owner) {
				entitled = true
				break
			}
		}
	}

	if min := role.MinBalanceValue(); min > 0 {
		entitled = false
		threshold := big.NewFloat(min)
		for _, h := range holders {
			balance, err := e.balance(ctx, contract, h.EthAddress)
			if err != nil {
				return false, err
			}
			if new(big.Float).SetInt(balance).Cmp(threshold) >= 0 {
				entitled = true
				break
			}
		}
	}

	if role.MetaCondition != "" {
		entitled = false
		meta, err := e.tokenMeta(ctx, contract, role.TokenID)
		if err != nil {
			return false, err
		}
		if meta != nil {
			entitled = e.evalMeta(role, meta)
		}
	}

	if cond, ok := role.RegistryCondition(); ok {
		entitled = false
		for _, h := range holders {
			record, err := e.registry.Record(ctx, cond.Version, cond.Organization, h.Address)
			if err != nil {
				return false, err
			}
			if record.Exists && (!cond.RequireActive || record.Active) {
				entitled = true
				break
			}
		}
	}

	return entitled, nil
}

// contractABI returns the cached ABI for a contract, refreshing lazily on
// miss or expiry.
func (e *Evaluator) contractABI(ctx context.Context, contract string) (string, error) {
	key := contract
	if key == "" {
		key = "default"
	}
	if cached, found := e.abiCache.Get(key); found {
		return cached.(string), nil
	}
	abiJSON, err := e.ledger.ABI(ctx, contract)
	if err != nil {
		return "", err
	}
	e.abiCache.Set(key, abiJSON, cache.DefaultExpiration)
	return abiJSON, nil
}

func (e *Evaluator) tokenOwner(ctx context.Context, contract, tokenID string) (string, error) {
	abiJSON, err := e.contractABI(ctx, contract)
	if err != nil {
		return "", err
	}
	return e.ledger.OwnerOf(ctx, abiJSON, contract, tokenID)
}

func (e *Evaluator) balance(ctx context.Context, contract, address string) (*big.Int, error) {
	abiJSON, err := e.contractABI(ctx, contract)
	if err != nil {
		return nil, err
	}
	return e.ledger.BalanceOf(ctx, abiJSON, contract, address)
}

// tokenMeta returns the cached metadata document for a token, or nil when
// the contract reports no content URI.
func (e *Evaluator) tokenMeta(ctx context.Context, contract, tokenID string) (map[string]any, error) {
	if cached, found := e.metaCache.Get(tokenID); found {
		return cached.(map[string]any), nil
	}

	abiJSON, err := e.contractABI(ctx, contract)
	if err != nil {
		return nil, err
	}
	uri, err := e.ledger.TokenURI(ctx, abiJSON, contract, tokenID)
	if err != nil {
		return nil, err
	}
	if uri == "" {
		return nil, nil
	}

	meta, err := e.ledger.FetchMetadata(ctx, uri)
	if err != nil {
		return nil, err
	}
	e.metaCache.Set(tokenID, meta, cache.DefaultExpiration)
	return meta, nil
}

// evalMeta runs the role's boolean expression against the metadata document
// in the sandboxed evaluator. Missing-field errors mean "not entitled"
// without noise; anything else is logged once and also means not entitled.
func (e *Evaluator) evalMeta(role model.Role, meta map[string]any) bool {
	out, err := expr.Eval(role.MetaCondition, meta)
	if err != nil {
		if !strings.Contains(err.Error(), "unknown name") {
			e.log.Errorw("failed to evaluate meta condition",
				"role", role.ExternalID, "tokenId", role.TokenID, "error", err)
		}
		return false
	}
	result, ok := out.(bool)
	return ok && result
}
