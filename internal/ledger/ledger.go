// Package ledger owns coin balances, locked stakes and XP credits.
// All mutations run in a single SQLite transaction together with their
// audit event, so balances and the stake lifecycle can never diverge.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"bountyline/internal/domain"
	"bountyline/internal/events"
	"bountyline/internal/rank"
	"bountyline/internal/repo"
)

var (
	// ErrInsufficientFunds is returned when a lock exceeds the balance.
	// User-correctable; surfaced verbatim.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInvalidTransition is returned for any event on a terminal stake.
	// Rejected rather than ignored so retried webhook calls cannot
	// double-credit.
	ErrInvalidTransition = errors.New("invalid stake transition")
	// ErrDuplicateAward is returned when a PR already has a bonus award.
	ErrDuplicateAward = errors.New("duplicate award")
)

// Resolution outcomes accepted by Release.
const (
	OutcomeCompleted = domain.StakeCompleted
	OutcomeRefunded  = domain.StakeRefunded
)

type Ledger struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Now    func() time.Time
}

func New(db *sql.DB) Ledger {
	return Ledger{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Now:    time.Now,
	}
}

func (l Ledger) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

// EnsureAccount creates the account on first contribution with the given
// starting balance. Existing accounts are returned unchanged.
func (l Ledger) EnsureAccount(ctx context.Context, accountID string, initialCoins int, actorID string) (domain.Account, error) {
	if accountID == "" {
		return domain.Account{}, errors.New("account id required")
	}
	if initialCoins < 0 {
		return domain.Account{}, errors.New("initial coins must not be negative")
	}
	if a, err := l.Repo.GetAccount(ctx, accountID); err == nil {
		return a, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Account{}, err
	}
	now := l.now().UTC().Format(time.RFC3339)
	a := domain.Account{
		ID:          accountID,
		CoinBalance: initialCoins,
		XP:          0,
		Rank:        rank.Of(0).String(),
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Account{}, err
	}
	defer tx.Rollback()
	if err := l.Repo.InsertAccount(ctx, tx, a); err != nil {
		return domain.Account{}, fmt.Errorf("insert account: %w", err)
	}
	if err := l.Events.Append(ctx, tx, "account.created", "", "account", a.ID, actorID, events.EventPayload{"coin_balance": a.CoinBalance}); err != nil {
		return domain.Account{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Account{}, err
	}
	return a, nil
}

// LockOptions are parameters for locking a stake.
type LockOptions struct {
	AccountID      string
	IssueNumber    int
	Repository     string
	Amount         int
	LinkedPRNumber *int
	ActorID        string
}

// Lock atomically debits the stake amount and creates the active stake.
// Two concurrent locks against a balance that covers only one cannot both
// succeed: the debit is a conditional update and SQLite serializes writers.
func (l Ledger) Lock(ctx context.Context, opts LockOptions) (domain.StakedIssue, error) {
	if opts.Amount <= 0 {
		return domain.StakedIssue{}, errors.New("stake amount must be positive")
	}
	if opts.AccountID == "" || opts.Repository == "" {
		return domain.StakedIssue{}, errors.New("account and repository required")
	}
	now := l.now().UTC().Format(time.RFC3339)
	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.StakedIssue{}, err
	}
	defer tx.Rollback()

	ok, err := l.Repo.DebitCoins(ctx, tx, opts.AccountID, opts.Amount, now)
	if err != nil {
		return domain.StakedIssue{}, fmt.Errorf("debit coins: %w", err)
	}
	if !ok {
		if _, err := l.Repo.GetAccountTx(ctx, tx, opts.AccountID); err != nil {
			return domain.StakedIssue{}, err
		}
		return domain.StakedIssue{}, fmt.Errorf("%w: account %s cannot cover stake of %d", ErrInsufficientFunds, opts.AccountID, opts.Amount)
	}

	s := domain.StakedIssue{
		ID:             uuid.New().String(),
		IssueNumber:    opts.IssueNumber,
		Repository:     opts.Repository,
		AccountID:      opts.AccountID,
		StakeAmount:    opts.Amount,
		Status:         domain.StakeActive,
		LinkedPRNumber: opts.LinkedPRNumber,
		CreatedAt:      now,
	}
	if err := l.Repo.InsertStake(ctx, tx, s); err != nil {
		// The partial unique index enforces one active stake per
		// (issue, account) pair.
		return domain.StakedIssue{}, fmt.Errorf("insert stake: %w", err)
	}
	if err := l.Events.Append(ctx, tx, "stake.locked", s.Repository, "stake", s.ID, opts.ActorID, events.EventPayload{
		"issue_number": s.IssueNumber,
		"account_id":   s.AccountID,
		"amount":       s.StakeAmount,
	}); err != nil {
		return domain.StakedIssue{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.StakedIssue{}, err
	}
	return s, nil
}

// Release credits stakeAmount + extraCoins back and moves the stake to the
// given terminal outcome (completed or refunded). Only legal from active.
func (l Ledger) Release(ctx context.Context, stakeID, toAccountID string, extraCoins int, outcome, actorID string) (domain.StakedIssue, error) {
	if outcome != OutcomeCompleted && outcome != OutcomeRefunded {
		return domain.StakedIssue{}, fmt.Errorf("release outcome must be %s or %s, got %q", OutcomeCompleted, OutcomeRefunded, outcome)
	}
	if extraCoins < 0 {
		return domain.StakedIssue{}, errors.New("extra coins must not be negative")
	}
	return l.resolve(ctx, stakeID, toAccountID, extraCoins, outcome, actorID)
}

// Forfeit moves the stake to expired without returning coins to the staker.
func (l Ledger) Forfeit(ctx context.Context, stakeID, actorID string) (domain.StakedIssue, error) {
	return l.resolve(ctx, stakeID, "", 0, domain.StakeExpired, actorID)
}

func (l Ledger) resolve(ctx context.Context, stakeID, toAccountID string, extraCoins int, status, actorID string) (domain.StakedIssue, error) {
	now := l.now().UTC().Format(time.RFC3339)
	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.StakedIssue{}, err
	}
	defer tx.Rollback()

	s, err := l.Repo.GetStakeTx(ctx, tx, stakeID)
	if err != nil {
		return domain.StakedIssue{}, err
	}
	moved, err := l.Repo.SetStakeStatus(ctx, tx, stakeID, status, now)
	if err != nil {
		return domain.StakedIssue{}, fmt.Errorf("set stake status: %w", err)
	}
	if !moved {
		return domain.StakedIssue{}, fmt.Errorf("%w: %s -> %s on stake %s", ErrInvalidTransition, s.Status, status, stakeID)
	}

	credited := 0
	if status != domain.StakeExpired {
		if toAccountID == "" {
			toAccountID = s.AccountID
		}
		credited = s.StakeAmount + extraCoins
		if err := l.Repo.CreditCoins(ctx, tx, toAccountID, credited, now); err != nil {
			return domain.StakedIssue{}, fmt.Errorf("credit coins: %w", err)
		}
	}

	evtType := "stake." + status
	if err := l.Events.Append(ctx, tx, evtType, s.Repository, "stake", s.ID, actorID, events.EventPayload{
		"issue_number": s.IssueNumber,
		"account_id":   s.AccountID,
		"to_account":   toAccountID,
		"credited":     credited,
	}); err != nil {
		return domain.StakedIssue{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.StakedIssue{}, err
	}
	s.Status = status
	s.ResolvedAt = &now
	return s, nil
}

// Award inserts the bonus award and credits its XP in one transaction.
// The rank is recomputed from the new XP total; rank is derived, never
// adjusted independently of xp. A second award for the same PR number
// returns ErrDuplicateAward and leaves the ledger untouched, so exactly one
// XP credit ever exists per PR.
func (l Ledger) Award(ctx context.Context, a domain.BonusAward, actorID string) (domain.BonusAward, domain.Account, error) {
	if a.XPAwarded <= 0 {
		return domain.BonusAward{}, domain.Account{}, errors.New("xp awarded must be positive")
	}
	now := l.now().UTC().Format(time.RFC3339)
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.AwardedAt = now

	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.BonusAward{}, domain.Account{}, err
	}
	defer tx.Rollback()

	if _, err := l.Repo.GetAwardByPRTx(ctx, tx, a.PRNumber); err == nil {
		return domain.BonusAward{}, domain.Account{}, fmt.Errorf("%w: PR #%d already awarded", ErrDuplicateAward, a.PRNumber)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.BonusAward{}, domain.Account{}, err
	}

	acct, err := l.Repo.GetAccountTx(ctx, tx, a.AccountID)
	if err != nil {
		return domain.BonusAward{}, domain.Account{}, err
	}
	acct.XP += a.XPAwarded
	acct.Rank = rank.Of(acct.XP).String()
	acct.UpdatedAt = now

	if err := l.Repo.InsertAward(ctx, tx, a); err != nil {
		// The unique index on pr_number backs up the read above.
		return domain.BonusAward{}, domain.Account{}, fmt.Errorf("insert award: %w", err)
	}
	if err := l.Repo.SetXP(ctx, tx, acct.ID, acct.XP, acct.Rank, now); err != nil {
		return domain.BonusAward{}, domain.Account{}, fmt.Errorf("set xp: %w", err)
	}
	if err := l.Events.Append(ctx, tx, "xp.awarded", "", "award", a.ID, actorID, events.EventPayload{
		"pr_number":  a.PRNumber,
		"account_id": a.AccountID,
		"xp_awarded": a.XPAwarded,
		"xp_total":   acct.XP,
		"rank":       acct.Rank,
	}); err != nil {
		return domain.BonusAward{}, domain.Account{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.BonusAward{}, domain.Account{}, err
	}
	return a, acct, nil
}
