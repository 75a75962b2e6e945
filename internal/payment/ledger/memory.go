package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	id "fxsettle/pkg/domain"
	"fxsettle/pkg/platform/sentinel"
)

// InMemoryLedger keeps committed balances. Mutations go through a Staged
// view that is applied by Commit.
type InMemoryLedger struct {
	mu       sync.RWMutex
	balances map[id.AccountID]*big.Int
	hooks    map[id.AccountID]ReceiveHook
}

func NewInMemory() *InMemoryLedger {
	return &InMemoryLedger{
		balances: make(map[id.AccountID]*big.Int),
		hooks:    make(map[id.AccountID]ReceiveHook),
	}
}

// SetReceiveHook installs the handler that runs when account receives value.
// A nil hook removes it.
func (l *InMemoryLedger) SetReceiveHook(account id.AccountID, hook ReceiveHook) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if hook == nil {
		delete(l.hooks, account)
		return
	}
	l.hooks[account] = hook
}

func (l *InMemoryLedger) Balance(_ context.Context, account id.AccountID) (*big.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.committed(account), nil
}

// Escrow, Fund and Transfer on the base ledger each run as their own
// single-operation unit.
func (l *InMemoryLedger) Escrow(ctx context.Context, amount *big.Int) error {
	s := l.Begin()
	if err := s.Escrow(ctx, amount); err != nil {
		return err
	}
	s.Commit()
	return nil
}

func (l *InMemoryLedger) Fund(ctx context.Context, amount *big.Int) error {
	s := l.Begin()
	if err := s.Fund(ctx, amount); err != nil {
		return err
	}
	s.Commit()
	return nil
}

func (l *InMemoryLedger) Transfer(ctx context.Context, to id.AccountID, amount *big.Int) error {
	s := l.Begin()
	if err := s.Transfer(ctx, to, amount); err != nil {
		return err
	}
	s.Commit()
	return nil
}

// Begin opens a staged view over the committed balances. Only one staged
// view may be committed at a time; callers serialize through their unit of
// work.
func (l *InMemoryLedger) Begin() *Staged {
	return &Staged{base: l, deltas: make(map[id.AccountID]*big.Int)}
}

func (l *InMemoryLedger) committed(account id.AccountID) *big.Int {
	if b, ok := l.balances[account]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

func (l *InMemoryLedger) hook(account id.AccountID) ReceiveHook {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.hooks[account]
}

// Staged accumulates balance deltas. Dropping it discards every change.
type Staged struct {
	base   *InMemoryLedger
	deltas map[id.AccountID]*big.Int
}

func (s *Staged) Balance(_ context.Context, account id.AccountID) (*big.Int, error) {
	return s.balance(account), nil
}

func (s *Staged) Escrow(_ context.Context, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	s.add(PoolAccount, amount)
	return nil
}

func (s *Staged) Fund(ctx context.Context, amount *big.Int) error {
	return s.Escrow(ctx, amount)
}

// Transfer debits the pool, credits to, then runs to's receive hook. The hook
// sees the staged balances.
func (s *Staged) Transfer(ctx context.Context, to id.AccountID, amount *big.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if s.balance(PoolAccount).Cmp(amount) < 0 {
		return fmt.Errorf("transfer %s to %s: %w", amount, to, sentinel.ErrInsufficientFunds)
	}
	s.add(PoolAccount, new(big.Int).Neg(amount))
	s.add(to, amount)

	if hook := s.base.hook(to); hook != nil {
		if err := hook(ctx, PoolAccount, new(big.Int).Set(amount)); err != nil {
			return fmt.Errorf("%w: %w", sentinel.ErrTransferRejected, err)
		}
	}
	return nil
}

// Commit applies the deltas to the committed balances.
func (s *Staged) Commit() {
	s.base.mu.Lock()
	defer s.base.mu.Unlock()
	for account, d := range s.deltas {
		next := s.base.committed(account)
		next.Add(next, d)
		s.base.balances[account] = next
	}
	s.deltas = make(map[id.AccountID]*big.Int)
}

func (s *Staged) balance(account id.AccountID) *big.Int {
	s.base.mu.RLock()
	b := s.base.committed(account)
	s.base.mu.RUnlock()
	if d, ok := s.deltas[account]; ok {
		b.Add(b, d)
	}
	return b
}

func (s *Staged) add(account id.AccountID, v *big.Int) {
	d, ok := s.deltas[account]
	if !ok {
		d = new(big.Int)
		s.deltas[account] = d
	}
	d.Add(d, v)
}

func checkAmount(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("amount must be non-negative")
	}
	return nil
}
