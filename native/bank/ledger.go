package bank

import (
	"errors"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	errInvalidToken        = errors.New("bank: token symbol required")
	errInvalidAmount       = errors.New("bank: amount must be positive")
	errInsufficientBalance = errors.New("bank: insufficient balance")
)

// Ledger is an in-process token ledger implementing the transfer primitives
// the lending engine consumes. Embedders running against a real token module
// substitute their own implementation behind the same interface; this one
// keeps transfers atomic and reverting the way the engine assumes.
type Ledger struct {
	mu       sync.RWMutex
	balances map[string]map[common.Address]*big.Int
}

// NewLedger constructs an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{balances: make(map[string]map[common.Address]*big.Int)}
}

func tokenKey(token string) string {
	return strings.ToUpper(strings.TrimSpace(token))
}

func (l *Ledger) bucket(token string) map[common.Address]*big.Int {
	key := tokenKey(token)
	if l.balances[key] == nil {
		l.balances[key] = make(map[common.Address]*big.Int)
	}
	return l.balances[key]
}

func (l *Ledger) balanceLocked(token string, addr common.Address) *big.Int {
	if bucket, ok := l.balances[tokenKey(token)]; ok {
		if bal, ok := bucket[addr]; ok {
			return bal
		}
	}
	return big.NewInt(0)
}

// BalanceOf reports the balance held by addr for the given token.
func (l *Ledger) BalanceOf(token string, addr common.Address) (*big.Int, error) {
	if tokenKey(token) == "" {
		return nil, errInvalidToken
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.balanceLocked(token, addr)), nil
}

// Mint credits freshly issued tokens to the recipient.
func (l *Ledger) Mint(token string, to common.Address, amount *big.Int) error {
	if tokenKey(token) == "" {
		return errInvalidToken
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	bucket := l.bucket(token)
	bucket[to] = new(big.Int).Add(l.balanceLocked(token, to), amount)
	return nil
}

// Burn destroys tokens held by the given account, rejecting when the balance
// is insufficient.
func (l *Ledger) Burn(token string, from common.Address, amount *big.Int) error {
	if tokenKey(token) == "" {
		return errInvalidToken
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	balance := l.balanceLocked(token, from)
	if balance.Cmp(amount) < 0 {
		return errInsufficientBalance
	}
	bucket := l.bucket(token)
	bucket[from] = new(big.Int).Sub(balance, amount)
	return nil
}

// Transfer moves tokens between accounts atomically, rejecting on
// insufficient balance with no partial effect.
func (l *Ledger) Transfer(token string, from, to common.Address, amount *big.Int) error {
	if tokenKey(token) == "" {
		return errInvalidToken
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fromBalance := l.balanceLocked(token, from)
	if fromBalance.Cmp(amount) < 0 {
		return errInsufficientBalance
	}
	bucket := l.bucket(token)
	bucket[from] = new(big.Int).Sub(fromBalance, amount)
	bucket[to] = new(big.Int).Add(l.balanceLocked(token, to), amount)
	return nil
}
