package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"bountyline/internal/db"
	"bountyline/internal/domain"
	"bountyline/internal/ledger"
	"bountyline/internal/migrate"
	"bountyline/internal/rank"
)

type testEnv struct {
	Ledger ledger.Ledger
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	l := ledger.New(conn)
	l.Now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Ledger: l, Ctx: context.Background()}
}

func (e testEnv) account(t *testing.T, id string, coins int) domain.Account {
	t.Helper()
	a, err := e.Ledger.EnsureAccount(e.Ctx, id, coins, "tester")
	if err != nil {
		t.Fatalf("ensure account: %v", err)
	}
	return a
}

func TestLockDebitsBalance(t *testing.T) {
	env := newTestEnv(t)
	env.account(t, "alice", 50)

	s, err := env.Ledger.Lock(env.Ctx, ledger.LockOptions{
		AccountID: "alice", IssueNumber: 7, Repository: "octo/widgets", Amount: 30, ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if s.Status != domain.StakeActive {
		t.Fatalf("expected active stake, got %s", s.Status)
	}
	a, err := env.Ledger.Repo.GetAccount(env.Ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if a.CoinBalance != 20 {
		t.Fatalf("expected balance 20, got %d", a.CoinBalance)
	}
}

func TestLockInsufficientFunds(t *testing.T) {
	env := newTestEnv(t)
	env.account(t, "bob", 10)

	_, err := env.Ledger.Lock(env.Ctx, ledger.LockOptions{
		AccountID: "bob", IssueNumber: 1, Repository: "octo/widgets", Amount: 30, ActorID: "tester",
	})
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	a, _ := env.Ledger.Repo.GetAccount(env.Ctx, "bob")
	if a.CoinBalance != 10 {
		t.Fatalf("balance must be untouched, got %d", a.CoinBalance)
	}
}

func TestSequentialLocksCannotOverdraw(t *testing.T) {
	env := newTestEnv(t)
	env.account(t, "carol", 40)

	if _, err := env.Ledger.Lock(env.Ctx, ledger.LockOptions{
		AccountID: "carol", IssueNumber: 1, Repository: "octo/widgets", Amount: 30, ActorID: "tester",
	}); err != nil {
		t.Fatalf("first lock: %v", err)
	}
	_, err := env.Ledger.Lock(env.Ctx, ledger.LockOptions{
		AccountID: "carol", IssueNumber: 2, Repository: "octo/widgets", Amount: 30, ActorID: "tester",
	})
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds on second lock, got %v", err)
	}
}

func TestOneActiveStakePerIssueAndAccount(t *testing.T) {
	env := newTestEnv(t)
	env.account(t, "dave", 100)

	if _, err := env.Ledger.Lock(env.Ctx, ledger.LockOptions{
		AccountID: "dave", IssueNumber: 5, Repository: "octo/widgets", Amount: 10, ActorID: "tester",
	}); err != nil {
		t.Fatalf("first lock: %v", err)
	}
	_, err := env.Ledger.Lock(env.Ctx, ledger.LockOptions{
		AccountID: "dave", IssueNumber: 5, Repository: "octo/widgets", Amount: 10, ActorID: "tester",
	})
	if err == nil {
		t.Fatalf("expected unique active stake violation")
	}
	// balance from the failed lock must not leak
	a, _ := env.Ledger.Repo.GetAccount(env.Ctx, "dave")
	if a.CoinBalance != 90 {
		t.Fatalf("expected balance 90, got %d", a.CoinBalance)
	}
}

func TestReleaseWithBounty(t *testing.T) {
	env := newTestEnv(t)
	env.account(t, "alice", 50)
	s, err := env.Ledger.Lock(env.Ctx, ledger.LockOptions{
		AccountID: "alice", IssueNumber: 7, Repository: "octo/widgets", Amount: 30, ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}

	resolved, err := env.Ledger.Release(env.Ctx, s.ID, "alice", 20, ledger.OutcomeCompleted, "maintainer")
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if resolved.Status != domain.StakeCompleted {
		t.Fatalf("expected completed, got %s", resolved.Status)
	}
	a, _ := env.Ledger.Repo.GetAccount(env.Ctx, "alice")
	if a.CoinBalance != 70 {
		t.Fatalf("expected balance 70 (20 + 30 stake + 20 bounty), got %d", a.CoinBalance)
	}
}

func TestReleaseRefundNoBounty(t *testing.T) {
	env := newTestEnv(t)
	env.account(t, "bob", 50)
	s, _ := env.Ledger.Lock(env.Ctx, ledger.LockOptions{
		AccountID: "bob", IssueNumber: 9, Repository: "octo/widgets", Amount: 25, ActorID: "tester",
	})

	resolved, err := env.Ledger.Release(env.Ctx, s.ID, "bob", 0, ledger.OutcomeRefunded, "maintainer")
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if resolved.Status != domain.StakeRefunded {
		t.Fatalf("expected refunded, got %s", resolved.Status)
	}
	a, _ := env.Ledger.Repo.GetAccount(env.Ctx, "bob")
	if a.CoinBalance != 50 {
		t.Fatalf("expected balance restored to 50, got %d", a.CoinBalance)
	}
}

func TestForfeitKeepsCoinsLocked(t *testing.T) {
	env := newTestEnv(t)
	env.account(t, "eve", 50)
	s, _ := env.Ledger.Lock(env.Ctx, ledger.LockOptions{
		AccountID: "eve", IssueNumber: 3, Repository: "octo/widgets", Amount: 30, ActorID: "tester",
	})

	expired, err := env.Ledger.Forfeit(env.Ctx, s.ID, "sweeper")
	if err != nil {
		t.Fatalf("forfeit: %v", err)
	}
	if expired.Status != domain.StakeExpired {
		t.Fatalf("expected expired, got %s", expired.Status)
	}
	a, _ := env.Ledger.Repo.GetAccount(env.Ctx, "eve")
	if a.CoinBalance != 20 {
		t.Fatalf("forfeited stake must not be returned, got %d", a.CoinBalance)
	}
}

func TestTerminalStakeRejectsFurtherTransitions(t *testing.T) {
	env := newTestEnv(t)
	env.account(t, "alice", 50)
	s, _ := env.Ledger.Lock(env.Ctx, ledger.LockOptions{
		AccountID: "alice", IssueNumber: 7, Repository: "octo/widgets", Amount: 30, ActorID: "tester",
	})
	if _, err := env.Ledger.Release(env.Ctx, s.ID, "alice", 0, ledger.OutcomeCompleted, "maintainer"); err != nil {
		t.Fatal(err)
	}

	// a retried resolution must fail, not double-credit
	_, err := env.Ledger.Release(env.Ctx, s.ID, "alice", 0, ledger.OutcomeCompleted, "maintainer")
	if !errors.Is(err, ledger.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	_, err = env.Ledger.Forfeit(env.Ctx, s.ID, "sweeper")
	if !errors.Is(err, ledger.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on forfeit, got %v", err)
	}
	a, _ := env.Ledger.Repo.GetAccount(env.Ctx, "alice")
	if a.CoinBalance != 50 {
		t.Fatalf("expected balance 50 after single release, got %d", a.CoinBalance)
	}
}

func TestAwardCreditsXPAndRank(t *testing.T) {
	env := newTestEnv(t)
	env.account(t, "alice", 0)

	award, acct, err := env.Ledger.Award(env.Ctx, domain.BonusAward{
		PRNumber:  12,
		AccountID: "alice",
		XPAwarded: 120,
		AwardedBy: "maintainer",
	}, "maintainer")
	if err != nil {
		t.Fatalf("award: %v", err)
	}
	if award.ID == "" {
		t.Fatalf("expected award id")
	}
	if acct.XP != 120 {
		t.Fatalf("expected 120 xp, got %d", acct.XP)
	}
	if acct.Rank != rank.Contributor.String() {
		t.Fatalf("expected rank recomputed to Contributor, got %s", acct.Rank)
	}
}

func TestAwardIdempotentPerPR(t *testing.T) {
	env := newTestEnv(t)
	env.account(t, "alice", 0)

	base := domain.BonusAward{PRNumber: 12, AccountID: "alice", XPAwarded: 50, AwardedBy: "maintainer"}
	if _, _, err := env.Ledger.Award(env.Ctx, base, "maintainer"); err != nil {
		t.Fatal(err)
	}
	_, _, err := env.Ledger.Award(env.Ctx, base, "maintainer")
	if !errors.Is(err, ledger.ErrDuplicateAward) {
		t.Fatalf("expected ErrDuplicateAward, got %v", err)
	}
	a, _ := env.Ledger.Repo.GetAccount(env.Ctx, "alice")
	if a.XP != 50 {
		t.Fatalf("expected exactly one XP credit (50), got %d", a.XP)
	}
}

func TestEventAppendOnLedgerChanges(t *testing.T) {
	env := newTestEnv(t)
	env.account(t, "alice", 50)
	s, _ := env.Ledger.Lock(env.Ctx, ledger.LockOptions{
		AccountID: "alice", IssueNumber: 7, Repository: "octo/widgets", Amount: 30, ActorID: "tester",
	})
	_, _ = env.Ledger.Release(env.Ctx, s.ID, "alice", 5, ledger.OutcomeCompleted, "maintainer")

	events, err := env.Ledger.Repo.LatestEvents(env.Ctx, 10, "", "", "stake", s.ID)
	if err != nil {
		t.Fatalf("query events: %v", err)
	}
	if len(events) < 2 {
		t.Fatalf("expected lock and release events, got %d", len(events))
	}
}
