package funds

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"vouchermarket/core/events"
	"vouchermarket/core/types"
	"vouchermarket/native/common"
)

const moduleName = "funds"

var (
	errNilState = errors.New("funds ledger: state not configured")

	// ErrSplitMismatch indicates that release splits do not sum to the
	// escrowed pool. This is an internal-consistency failure of the calling
	// engine, never a user error.
	ErrSplitMismatch = errors.New("funds ledger: release splits do not match escrow pool")
)

type ledgerState interface {
	FundsGet(account uint64, currency string) (*big.Int, error)
	FundsPut(account uint64, currency string, amount *big.Int) error
	EscrowGet(exchangeID uint64, currency string) (*big.Int, error)
	EscrowPut(exchangeID uint64, currency string, amount *big.Int) error
}

// Split names one recipient of a released escrow pool.
type Split struct {
	Account uint64
	Amount  *big.Int
}

type ledgerEvent struct {
	evt *types.Event
}

func (e ledgerEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e ledgerEvent) Event() *types.Event { return e.evt }

// Ledger tracks per-(account, currency) available balances and per-exchange
// escrow pools. Funds move between the two only through encumber and release,
// which together enforce the conservation law: every amount encumbered at
// commit is released exactly once across a finalizing transition.
type Ledger struct {
	state   ledgerState
	emitter events.Emitter
	pauses  common.PauseView
}

// NewLedger creates a funds ledger with a no-op emitter.
func NewLedger() *Ledger {
	return &Ledger{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the ledger.
func (l *Ledger) SetState(state ledgerState) { l.state = state }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// SetPauses configures the administrative pause view.
func (l *Ledger) SetPauses(p common.PauseView) { l.pauses = p }

func (l *Ledger) emit(evt *types.Event) {
	if l == nil || l.emitter == nil || evt == nil {
		return
	}
	l.emitter.Emit(ledgerEvent{evt: evt})
}

// NormalizeCurrency canonicalises a currency symbol to uppercase and rejects
// empty identifiers.
func NormalizeCurrency(symbol string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	if trimmed == "" {
		return "", fmt.Errorf("funds: empty currency: %w", common.ErrConfigurationInvalid)
	}
	return trimmed, nil
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func (l *Ledger) available(account uint64, currency string) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	balance, err := l.state.FundsGet(account, currency)
	if err != nil {
		return nil, err
	}
	return cloneBigInt(balance), nil
}

// Available returns the withdrawable balance for the account and currency.
func (l *Ledger) Available(account uint64, currency string) (*big.Int, error) {
	normalized, err := NormalizeCurrency(currency)
	if err != nil {
		return nil, err
	}
	return l.available(account, normalized)
}

// Escrowed returns the escrow pool held against the exchange.
func (l *Ledger) Escrowed(exchangeID uint64, currency string) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	normalized, err := NormalizeCurrency(currency)
	if err != nil {
		return nil, err
	}
	pool, err := l.state.EscrowGet(exchangeID, normalized)
	if err != nil {
		return nil, err
	}
	return cloneBigInt(pool), nil
}

// Deposit credits available funds. Anyone may fund any account.
func (l *Ledger) Deposit(account uint64, currency string, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if err := common.Guard(l.pauses, moduleName); err != nil {
		return err
	}
	normalized, err := NormalizeCurrency(currency)
	if err != nil {
		return err
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return fmt.Errorf("funds: deposit amount must be positive: %w", common.ErrConfigurationInvalid)
	}
	balance, err := l.available(account, normalized)
	if err != nil {
		return err
	}
	balance.Add(balance, amt)
	if err := l.state.FundsPut(account, normalized, balance); err != nil {
		return err
	}
	l.emit(newFundsEvent(EventTypeFundsDeposited, account, normalized, amt, balance))
	return nil
}

// Withdraw debits available funds and pays them out to the account's
// registered address. The payout itself happens at the token boundary; the
// ledger only enforces the balance invariant.
func (l *Ledger) Withdraw(account uint64, currency string, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if err := common.Guard(l.pauses, moduleName); err != nil {
		return err
	}
	normalized, err := NormalizeCurrency(currency)
	if err != nil {
		return err
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return fmt.Errorf("funds: withdraw amount must be positive: %w", common.ErrConfigurationInvalid)
	}
	balance, err := l.available(account, normalized)
	if err != nil {
		return err
	}
	if balance.Cmp(amt) < 0 {
		return fmt.Errorf("funds: account %d has %s available, needs %s: %w", account, balance, amt, common.ErrInsufficientFunds)
	}
	balance.Sub(balance, amt)
	if err := l.state.FundsPut(account, normalized, balance); err != nil {
		return err
	}
	l.emit(newFundsEvent(EventTypeFundsWithdrawn, account, normalized, amt, balance))
	return nil
}

// Transfer moves available funds between two accounts. Price-discovery
// mechanisms use it to settle the external leg of a sale.
func (l *Ledger) Transfer(from, to uint64, currency string, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	normalized, err := NormalizeCurrency(currency)
	if err != nil {
		return err
	}
	amt := cloneBigInt(amount)
	if amt.Sign() == 0 {
		return nil
	}
	if amt.Sign() < 0 {
		return fmt.Errorf("funds: negative transfer amount: %w", common.ErrConfigurationInvalid)
	}
	fromBalance, err := l.available(from, normalized)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amt) < 0 {
		return fmt.Errorf("funds: account %d has %s available, needs %s: %w", from, fromBalance, amt, common.ErrInsufficientFunds)
	}
	toBalance, err := l.available(to, normalized)
	if err != nil {
		return err
	}
	fromBalance.Sub(fromBalance, amt)
	toBalance.Add(toBalance, amt)
	if err := l.state.FundsPut(from, normalized, fromBalance); err != nil {
		return err
	}
	return l.state.FundsPut(to, normalized, toBalance)
}

// CanEncumber reports whether the account could encumber the amount right
// now. Engines use it to pre-check multi-party commits so either every leg
// encumbers or none does.
func (l *Ledger) CanEncumber(account uint64, currency string, amount *big.Int) error {
	normalized, err := NormalizeCurrency(currency)
	if err != nil {
		return err
	}
	amt := cloneBigInt(amount)
	if amt.Sign() < 0 {
		return fmt.Errorf("funds: negative encumbrance: %w", common.ErrConfigurationInvalid)
	}
	balance, err := l.available(account, normalized)
	if err != nil {
		return err
	}
	if balance.Cmp(amt) < 0 {
		return fmt.Errorf("funds: account %d has %s available, needs %s: %w", account, balance, amt, common.ErrInsufficientFunds)
	}
	return nil
}

// Encumber debits available funds into the escrow pool tied to an exchange.
func (l *Ledger) Encumber(exchangeID, account uint64, currency string, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	normalized, err := NormalizeCurrency(currency)
	if err != nil {
		return err
	}
	amt := cloneBigInt(amount)
	if amt.Sign() == 0 {
		return nil
	}
	if amt.Sign() < 0 {
		return fmt.Errorf("funds: negative encumbrance: %w", common.ErrConfigurationInvalid)
	}
	balance, err := l.available(account, normalized)
	if err != nil {
		return err
	}
	if balance.Cmp(amt) < 0 {
		return fmt.Errorf("funds: account %d has %s available, needs %s: %w", account, balance, amt, common.ErrInsufficientFunds)
	}
	pool, err := l.state.EscrowGet(exchangeID, normalized)
	if err != nil {
		return err
	}
	pool = cloneBigInt(pool)
	balance.Sub(balance, amt)
	pool.Add(pool, amt)
	if err := l.state.FundsPut(account, normalized, balance); err != nil {
		return err
	}
	if err := l.state.EscrowPut(exchangeID, normalized, pool); err != nil {
		return err
	}
	l.emit(newEscrowEvent(EventTypeFundsEncumbered, exchangeID, account, normalized, amt, pool))
	return nil
}

// Release distributes the exchange's escrow pool across the splits. The sum
// of splits must equal the pool exactly; a mismatch aborts before any credit
// is applied.
func (l *Ledger) Release(exchangeID uint64, currency string, splits []Split) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	normalized, err := NormalizeCurrency(currency)
	if err != nil {
		return err
	}
	pool, err := l.state.EscrowGet(exchangeID, normalized)
	if err != nil {
		return err
	}
	pool = cloneBigInt(pool)
	total := big.NewInt(0)
	for _, split := range splits {
		if split.Amount == nil || split.Amount.Sign() < 0 {
			return fmt.Errorf("%w: negative split for account %d", ErrSplitMismatch, split.Account)
		}
		total.Add(total, split.Amount)
	}
	if total.Cmp(pool) != 0 {
		return fmt.Errorf("%w: exchange %d pool %s, splits %s", ErrSplitMismatch, exchangeID, pool, total)
	}
	if err := l.state.EscrowPut(exchangeID, normalized, big.NewInt(0)); err != nil {
		return err
	}
	for _, split := range splits {
		if split.Amount.Sign() == 0 {
			continue
		}
		balance, err := l.available(split.Account, normalized)
		if err != nil {
			return err
		}
		balance.Add(balance, split.Amount)
		if err := l.state.FundsPut(split.Account, normalized, balance); err != nil {
			return err
		}
	}
	l.emit(newEscrowEvent(EventTypeFundsReleased, exchangeID, 0, normalized, pool, big.NewInt(0)))
	return nil
}
