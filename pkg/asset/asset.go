// Package asset is the registry of fiat and crypto asset metadata.
package asset

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"peachcash/pkg/kv"
	"peachcash/pkg/xlog"
)

const storeKey = "assets"

var (
	ErrNotFound     = errors.New("asset not found")
	ErrInvalidAsset = errors.New("invalid asset")
)

var logger = xlog.GetLogger()

type Kind string

const (
	Fiat   Kind = "fiat"
	Crypto Kind = "crypto"
)

// Decimals returns the fixed precision of the kind
func (k Kind) Decimals() int32 {
	switch k {
	case Fiat:
		return 2
	case Crypto:
		return 8
	}
	return -1
}

func (k Kind) Valid() bool {
	return k == Fiat || k == Crypto
}

type Asset struct {
	ID       string `json:"id"`
	Kind     Kind   `json:"type"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals int32  `json:"decimals"`
	Image    string `json:"image,omitempty"`
	IsActive bool   `json:"isActive"`
}

// Validate checks required fields and the kind/decimals pairing
func (a Asset) Validate() error {
	if a.ID == "" || a.Symbol == "" || a.Name == "" {
		return fmt.Errorf("%w: id, symbol and name are required", ErrInvalidAsset)
	}
	if !a.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidAsset, a.Kind)
	}
	if a.Decimals != a.Kind.Decimals() {
		return fmt.Errorf("%w: %s assets must have %d decimals, got %d",
			ErrInvalidAsset, a.Kind, a.Kind.Decimals(), a.Decimals)
	}
	return nil
}

// Patch holds the fields to change, nil fields are kept
type Patch struct {
	Kind     *Kind
	Symbol   *string
	Name     *string
	Decimals *int32
	Image    *string
	IsActive *bool
}

func (p Patch) apply(a Asset) Asset {
	if p.Kind != nil {
		a.Kind = *p.Kind
	}
	if p.Symbol != nil {
		a.Symbol = *p.Symbol
	}
	if p.Name != nil {
		a.Name = *p.Name
	}
	if p.Decimals != nil {
		a.Decimals = *p.Decimals
	}
	if p.Image != nil {
		a.Image = *p.Image
	}
	if p.IsActive != nil {
		a.IsActive = *p.IsActive
	}
	return a
}

// Registry persists the whole asset collection under one key
type Registry struct {
	store kv.KV
	mu    sync.Mutex
}

func NewRegistry(store kv.KV) *Registry {
	return &Registry{store: store}
}

func (r *Registry) load(ctx context.Context) (assets []Asset, err error) {
	_, err = r.store.Get(ctx, storeKey, &assets)
	return
}

func (r *Registry) Get(ctx context.Context, id string) (Asset, error) {
	assets, err := r.load(ctx)
	if err != nil {
		return Asset{}, err
	}
	for _, a := range assets {
		if a.ID == id {
			return a, nil
		}
	}
	return Asset{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (r *Registry) List(ctx context.Context) ([]Asset, error) {
	return r.load(ctx)
}

func (r *Registry) ListByKind(ctx context.Context, kind Kind) ([]Asset, error) {
	return r.filter(ctx, func(a Asset) bool { return a.Kind == kind })
}

func (r *Registry) ListActive(ctx context.Context) ([]Asset, error) {
	return r.filter(ctx, func(a Asset) bool { return a.IsActive })
}

func (r *Registry) filter(ctx context.Context, keep func(Asset) bool) ([]Asset, error) {
	assets, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Asset, 0, len(assets))
	for _, a := range assets {
		if keep(a) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *Registry) Count(ctx context.Context) (int, error) {
	assets, err := r.load(ctx)
	return len(assets), err
}

// Create adds the asset, an existing id returns the stored asset unchanged
func (r *Registry) Create(ctx context.Context, a Asset) (Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, created, err := r.create(ctx, a)
	if err == nil && !created {
		logger.Warningf("asset %s already exists, keeping the stored one", a.ID)
	}
	return stored, err
}

// EnsureCrypto registers a crypto picked from the market the first time it is seen.
// Kind, decimals and active are forced, created reports whether it was new.
func (r *Registry) EnsureCrypto(ctx context.Context, a Asset) (stored Asset, created bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a.Kind = Crypto
	a.Decimals = Crypto.Decimals()
	a.IsActive = true
	stored, created, err = r.create(ctx, a)
	if created {
		logger.Infof("crypto %s (%s) registered from the market", a.ID, a.Symbol)
	}
	return
}

func (r *Registry) create(ctx context.Context, a Asset) (Asset, bool, error) {
	assets, err := r.load(ctx)
	if err != nil {
		return Asset{}, false, err
	}
	for _, existing := range assets {
		if existing.ID == a.ID {
			return existing, false, nil
		}
	}

	if err := a.Validate(); err != nil {
		return Asset{}, false, err
	}

	assets = append(assets, a)
	if err := r.store.Set(ctx, storeKey, assets); err != nil {
		return Asset{}, false, err
	}
	logger.Debugf("asset %s created, kind:%s", a.ID, a.Kind)
	return a, true, nil
}

// Update merges the patch into the stored asset, the id never changes
func (r *Registry) Update(ctx context.Context, id string, p Patch) (Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.update(ctx, id, func(a Asset) Asset { return p.apply(a) })
}

func (r *Registry) ToggleActive(ctx context.Context, id string) (Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.update(ctx, id, func(a Asset) Asset {
		a.IsActive = !a.IsActive
		return a
	})
}

func (r *Registry) update(ctx context.Context, id string, fn func(Asset) Asset) (Asset, error) {
	assets, err := r.load(ctx)
	if err != nil {
		return Asset{}, err
	}

	for i, a := range assets {
		if a.ID != id {
			continue
		}
		merged := fn(a)
		merged.ID = id
		if err := merged.Validate(); err != nil {
			return Asset{}, err
		}
		assets[i] = merged
		if err := r.store.Set(ctx, storeKey, assets); err != nil {
			return Asset{}, err
		}
		return merged, nil
	}
	return Asset{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Delete removes the asset, balances and transactions referencing it are kept
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	assets, err := r.load(ctx)
	if err != nil {
		return err
	}

	kept := assets[:0]
	for _, a := range assets {
		if a.ID != id {
			kept = append(kept, a)
		}
	}
	if len(kept) == len(assets) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r.store.Set(ctx, storeKey, kept)
}

// Init seeds the default assets when the registry is empty
func (r *Registry) Init(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	assets, err := r.load(ctx)
	if err != nil {
		return err
	}
	if len(assets) > 0 {
		return nil
	}
	logger.Infof("asset registry empty, seeding %d defaults", len(Defaults))
	return r.store.Set(ctx, storeKey, Defaults)
}

func (r *Registry) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store.Delete(ctx, storeKey)
}

var Defaults = []Asset{
	{ID: "usd", Kind: Fiat, Symbol: "USD", Name: "US Dollar", Decimals: 2, IsActive: true},
	{ID: "ars", Kind: Fiat, Symbol: "ARS", Name: "Argentine Peso", Decimals: 2, IsActive: true},
	{ID: "eur", Kind: Fiat, Symbol: "EUR", Name: "Euro", Decimals: 2, IsActive: true},
	{ID: "jpy", Kind: Fiat, Symbol: "JPY", Name: "Japanese Yen", Decimals: 2, IsActive: true},
	{
		ID: "bitcoin", Kind: Crypto, Symbol: "BTC", Name: "Bitcoin", Decimals: 8, IsActive: true,
		Image: "https://assets.coingecko.com/coins/images/1/large/bitcoin.png",
	},
	{
		ID: "ethereum", Kind: Crypto, Symbol: "ETH", Name: "Ethereum", Decimals: 8, IsActive: true,
		Image: "https://assets.coingecko.com/coins/images/279/large/ethereum.png",
	},
	{
		ID: "tether", Kind: Crypto, Symbol: "USDT", Name: "Tether", Decimals: 8, IsActive: true,
		Image: "https://assets.coingecko.com/coins/images/325/large/Tether.png",
	},
}
