// Package transfer defines the value-movement primitive the sale engine
// calls into. The engine only invokes it — it never implements settlement
// itself — and treats any error as a hard failure that aborts the
// enclosing operation.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientFunds is returned when a debit exceeds the account balance.
	ErrInsufficientFunds = errors.New("transfer: insufficient funds")

	// ErrInvalidAmount is returned for zero or negative transfer amounts.
	ErrInvalidAmount = errors.New("transfer: amount must be positive")
)

// Transfer moves fungible value between accounts.
type Transfer interface {
	// Debit removes amount from the account, failing atomically if the
	// balance is insufficient.
	Debit(ctx context.Context, account string, amount decimal.Decimal) error

	// Credit adds amount to the account.
	Credit(ctx context.Context, account string, amount decimal.Decimal) error
}

// Book is an in-memory account book used for development and testing.
// Accounts are created implicitly with a zero balance.
type Book struct {
	mu       sync.RWMutex
	balances map[string]decimal.Decimal
}

// NewBook creates an empty account book.
func NewBook() *Book {
	return &Book{balances: make(map[string]decimal.Decimal)}
}

// Deposit seeds an account balance. Test/dev helper, not part of Transfer.
func (b *Book) Deposit(account string, amount decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[account] = b.balances[account].Add(amount)
}

// Balance returns the current balance of an account.
func (b *Book) Balance(account string) decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.balances[account]
}

func (b *Book) Debit(_ context.Context, account string, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	balance := b.balances[account]
	if balance.LessThan(amount) {
		return fmt.Errorf("%w: account %s has %s, need %s",
			ErrInsufficientFunds, account, balance, amount)
	}
	b.balances[account] = balance.Sub(amount)
	return nil
}

func (b *Book) Credit(_ context.Context, account string, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.balances[account] = b.balances[account].Add(amount)
	return nil
}
