package oracle

import (
	"errors"
	"fmt"

	"peachcash/pkg/asset"
)

// Mode is the direction of an exchange
type Mode int

const (
	FiatToCrypto Mode = iota + 1
	CryptoToFiat
)

var ErrUnknownMode = errors.New("unknown exchange mode")

func ParseMode(s string) (Mode, error) {
	switch s {
	case "fiat-to-crypto":
		return FiatToCrypto, nil
	case "crypto-to-fiat":
		return CryptoToFiat, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

func (m Mode) String() string {
	switch m {
	case FiatToCrypto:
		return "fiat-to-crypto"
	case CryptoToFiat:
		return "crypto-to-fiat"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

func (m Mode) Valid() bool {
	switch m {
	case FiatToCrypto, CryptoToFiat:
		return true
	}
	return false
}

// Kinds returns the asset kinds expected on the from and to side
func (m Mode) Kinds() (from, to asset.Kind) {
	switch m {
	case FiatToCrypto:
		return asset.Fiat, asset.Crypto
	case CryptoToFiat:
		return asset.Crypto, asset.Fiat
	}
	return "", ""
}

// Roles maps the from/to asset ids to the crypto and fiat ids the price feed wants
func (m Mode) Roles(from, to string) (crypto, fiat string) {
	switch m {
	case FiatToCrypto:
		return to, from
	case CryptoToFiat:
		return from, to
	}
	return "", ""
}

func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMode, int(m))
	}
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(b []byte) (err error) {
	*m, err = ParseMode(string(b))
	return
}
