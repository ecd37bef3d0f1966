package engine_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"bountyline/internal/config"
	"bountyline/internal/db"
	"bountyline/internal/domain"
	"bountyline/internal/engine"
	"bountyline/internal/ledger"
	"bountyline/internal/migrate"
	"bountyline/internal/priority"
	"bountyline/internal/reward"
)

type fakeSource struct {
	prs    []domain.PRRef
	labels []string
	diffs  map[int]string
}

func (f *fakeSource) FetchLinkedPRs(ctx context.Context, issueNumber int) ([]domain.PRRef, error) {
	return f.prs, nil
}

func (f *fakeSource) FetchDiff(ctx context.Context, prNumber int) (string, error) {
	if d, ok := f.diffs[prNumber]; ok {
		return d, nil
	}
	return "diff --git a/main.go b/main.go", nil
}

func (f *fakeSource) FetchLabels(ctx context.Context, issueNumber int) ([]string, error) {
	return f.labels, nil
}

type fakeScorer struct {
	scores map[int]domain.PRScore
	fail   map[int]bool
}

func (f *fakeScorer) Score(ctx context.Context, req engine.ScoreRequest) (domain.PRScore, error) {
	if f.fail[req.PRNumber] {
		return domain.PRScore{}, fmt.Errorf("%w: model offline", engine.ErrScoringUnavailable)
	}
	return f.scores[req.PRNumber], nil
}

type fakeSink struct {
	issueLabels map[int][]string
	prLabels    map[int][]string
	awards      []domain.BonusAward
	failAwards  bool
	failLabels  bool
}

func newFakeSink() *fakeSink {
	return &fakeSink{issueLabels: map[int][]string{}, prLabels: map[int][]string{}}
}

func (f *fakeSink) ApplyLabels(ctx context.Context, issueNumber int, labels []string) error {
	if f.failLabels {
		return errors.New("github 502")
	}
	f.issueLabels[issueNumber] = labels
	return nil
}

func (f *fakeSink) ApplyPRLabels(ctx context.Context, prNumber int, labels []string) error {
	if f.failLabels {
		return errors.New("github 502")
	}
	f.prLabels[prNumber] = labels
	return nil
}

func (f *fakeSink) RecordAward(ctx context.Context, award domain.BonusAward) error {
	if f.failAwards {
		return errors.New("github 502")
	}
	f.awards = append(f.awards, award)
	return nil
}

type testEnv struct {
	Engine engine.Engine
	Source *fakeSource
	Scorer *fakeScorer
	Sink   *fakeSink
	Ctx    context.Context
}

func newTestEnv(t *testing.T) *testEnv {
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
	cfg := config.Default("octo", "widgets")
	e := engine.New(conn, cfg)
	e.Now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }
	e.Ledger.Now = e.Now
	env := &testEnv{
		Engine: e,
		Source: &fakeSource{diffs: map[int]string{}},
		Scorer: &fakeScorer{scores: map[int]domain.PRScore{}, fail: map[int]bool{}},
		Sink:   newFakeSink(),
		Ctx:    context.Background(),
	}
	env.Engine.Source = env.Source
	env.Engine.Scorer = env.Scorer
	env.Engine.Sink = env.Sink
	return env
}

func (e *testEnv) account(t *testing.T, id string, coins int) {
	t.Helper()
	if _, err := e.Engine.Ledger.EnsureAccount(e.Ctx, id, coins, "tester"); err != nil {
		t.Fatalf("ensure account: %v", err)
	}
}

func uniformScore(pr, score int, followed bool) domain.PRScore {
	return domain.PRScore{
		PRNumber:              pr,
		DesignPatternScore:    score,
		CodeQualityScore:      score,
		PriorityScore:         score,
		DesignPatternFollowed: followed,
	}
}

func TestAnalyzeIssueBucketsAndIssuePriority(t *testing.T) {
	env := newTestEnv(t)
	env.Source.prs = []domain.PRRef{{Number: 11}, {Number: 12}, {Number: 13}}
	env.Scorer.scores[11] = uniformScore(11, 90, true)
	env.Scorer.scores[12] = uniformScore(12, 70, true)
	env.Scorer.scores[13] = uniformScore(13, 40, false)

	res, err := env.Engine.AnalyzeIssue(env.Ctx, 5, "tester")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if res.IssuePriority != priority.Priority1 {
		t.Fatalf("top score 90 must give Priority-1, got %s", res.IssuePriority)
	}
	want := map[int]string{11: priority.Priority1, 12: priority.Priority2, 13: priority.Priority3}
	for pr, label := range want {
		if res.PriorityAssignments[pr] != label {
			t.Fatalf("PR %d: expected %s, got %s", pr, label, res.PriorityAssignments[pr])
		}
	}
	if len(env.Sink.issueLabels[5]) == 0 {
		t.Fatalf("expected issue labels written")
	}
	if got := env.Sink.prLabels[11]; len(got) != 2 || got[0] != priority.Priority1 {
		t.Fatalf("unexpected PR 11 labels: %v", got)
	}
}

func TestAnalyzeIssueScorerFailureFallsBackToNeutral(t *testing.T) {
	env := newTestEnv(t)
	for n := 1; n <= 5; n++ {
		env.Source.prs = append(env.Source.prs, domain.PRRef{Number: n})
		env.Scorer.scores[n] = uniformScore(n, 80, true)
	}
	env.Scorer.fail[3] = true

	res, err := env.Engine.AnalyzeIssue(env.Ctx, 9, "tester")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(res.PerPRScores) != 5 {
		t.Fatalf("batch must still return 5 results, got %d", len(res.PerPRScores))
	}
	var got domain.PRScore
	for _, s := range res.PerPRScores {
		if s.PRNumber == 3 {
			got = s
		}
	}
	if got != priority.Neutral(3) {
		t.Fatalf("expected neutral fallback for PR 3, got %+v", got)
	}
}

func TestAnalyzeIssueIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.Source.prs = []domain.PRRef{{Number: 4}, {Number: 2}}
	env.Scorer.scores[2] = uniformScore(2, 75, true)
	env.Scorer.scores[4] = uniformScore(4, 75, true)

	first, err := env.Engine.AnalyzeIssue(env.Ctx, 1, "tester")
	if err != nil {
		t.Fatal(err)
	}
	second, err := env.Engine.AnalyzeIssue(env.Ctx, 1, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if first.IssuePriority != second.IssuePriority {
		t.Fatalf("issue priority not stable: %s vs %s", first.IssuePriority, second.IssuePriority)
	}
	// tie broken by ascending PR number on both runs
	if first.PriorityAssignments[2] != priority.Priority1 || second.PriorityAssignments[2] != priority.Priority1 {
		t.Fatalf("expected PR 2 first on ties, got %v / %v", first.PriorityAssignments, second.PriorityAssignments)
	}
}

func TestAnalyzeIssueSinkFailureKeepsResult(t *testing.T) {
	env := newTestEnv(t)
	env.Source.prs = []domain.PRRef{{Number: 1}}
	env.Scorer.scores[1] = uniformScore(1, 50, false)
	env.Sink.failLabels = true

	_, err := env.Engine.AnalyzeIssue(env.Ctx, 7, "tester")
	if !errors.Is(err, engine.ErrSinkUnavailable) {
		t.Fatalf("expected ErrSinkUnavailable, got %v", err)
	}
	// the analysis itself was committed before the label write
	stored, err := env.Engine.Repo.LatestAnalysis(env.Ctx, "octo/widgets", 7)
	if err != nil {
		t.Fatalf("expected persisted analysis: %v", err)
	}
	if stored.IssueNumber != 7 {
		t.Fatalf("unexpected stored analysis: %+v", stored)
	}
}

func TestAwardBonusCreditsOnce(t *testing.T) {
	env := newTestEnv(t)
	env.account(t, "alice", 0)

	opts := engine.AwardBonusOptions{
		PRNumber:  21,
		AccountID: "alice",
		Dimensions: reward.Dimensions{
			Correctness: 5, Clarity: 4, Maintainability: 4, Testing: 5, Documentation: 3,
		},
		Bonuses: reward.Bonuses{TestsAdded: true},
		ActorID: "maintainer",
	}
	award, acct, err := env.Engine.AwardBonus(env.Ctx, opts)
	if err != nil {
		t.Fatalf("award: %v", err)
	}
	if award.XPAwarded < reward.MinXP || award.XPAwarded > reward.MaxXP {
		t.Fatalf("xp out of bounds: %d", award.XPAwarded)
	}
	if acct.XP != award.XPAwarded {
		t.Fatalf("account xp %d != awarded %d", acct.XP, award.XPAwarded)
	}
	if len(env.Sink.awards) != 1 {
		t.Fatalf("expected one sink notification, got %d", len(env.Sink.awards))
	}

	_, _, err = env.Engine.AwardBonus(env.Ctx, opts)
	if !errors.Is(err, ledger.ErrDuplicateAward) {
		t.Fatalf("expected ErrDuplicateAward, got %v", err)
	}
	a, _ := env.Engine.Repo.GetAccount(env.Ctx, "alice")
	if a.XP != award.XPAwarded {
		t.Fatalf("duplicate award must not change xp, got %d", a.XP)
	}
}

func TestAwardBonusSinkFailureKeepsLedger(t *testing.T) {
	env := newTestEnv(t)
	env.account(t, "alice", 0)
	env.Sink.failAwards = true

	award, _, err := env.Engine.AwardBonus(env.Ctx, engine.AwardBonusOptions{
		PRNumber:   33,
		AccountID:  "alice",
		Dimensions: reward.Dimensions{Correctness: 3, Clarity: 3, Maintainability: 3, Testing: 3, Documentation: 3},
		ActorID:    "maintainer",
	})
	if !errors.Is(err, engine.ErrSinkUnavailable) {
		t.Fatalf("expected ErrSinkUnavailable, got %v", err)
	}
	// ledger commit happened before the sink write and is not rolled back
	a, _ := env.Engine.Repo.GetAccount(env.Ctx, "alice")
	if a.XP != award.XPAwarded {
		t.Fatalf("expected committed xp %d, got %d", award.XPAwarded, a.XP)
	}
	if _, err := env.Engine.Repo.GetAwardByPR(env.Ctx, 33); err != nil {
		t.Fatalf("expected persisted award: %v", err)
	}
}

func TestOpenStakeParsesLabelAmount(t *testing.T) {
	env := newTestEnv(t)
	env.account(t, "alice", 100)
	env.Source.labels = []string{"bug", "stake:40", "bounty:15"}

	s, err := env.Engine.OpenStake(env.Ctx, 8, 101, "alice", "alice")
	if err != nil {
		t.Fatalf("open stake: %v", err)
	}
	if s.StakeAmount != 40 {
		t.Fatalf("expected stake 40 from label, got %d", s.StakeAmount)
	}
	if s.LinkedPRNumber == nil || *s.LinkedPRNumber != 101 {
		t.Fatalf("expected linked PR 101")
	}
	a, _ := env.Engine.Repo.GetAccount(env.Ctx, "alice")
	if a.CoinBalance != 60 {
		t.Fatalf("expected balance 60, got %d", a.CoinBalance)
	}
}

func TestOpenStakeRequiresStakeLabel(t *testing.T) {
	env := newTestEnv(t)
	env.account(t, "alice", 100)
	env.Source.labels = []string{"bug", "help wanted"}

	_, err := env.Engine.OpenStake(env.Ctx, 8, 101, "alice", "alice")
	if err == nil {
		t.Fatalf("expected error for unlabeled issue")
	}
}

func TestResolveStakeMergedPaysBounty(t *testing.T) {
	env := newTestEnv(t)
	env.account(t, "alice", 50)
	env.Source.labels = []string{"stake:30", "bounty:20"}
	s, err := env.Engine.OpenStake(env.Ctx, 8, 101, "alice", "alice")
	if err != nil {
		t.Fatal(err)
	}

	resolved, err := env.Engine.ResolveStake(env.Ctx, s.ID, true, "maintainer")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Status != domain.StakeCompleted {
		t.Fatalf("expected completed, got %s", resolved.Status)
	}
	a, _ := env.Engine.Repo.GetAccount(env.Ctx, "alice")
	if a.CoinBalance != 70 {
		t.Fatalf("expected 70 (20 left + 30 stake + 20 bounty), got %d", a.CoinBalance)
	}
}

func TestResolveStakeUnmergedRefundsOnly(t *testing.T) {
	env := newTestEnv(t)
	env.account(t, "alice", 50)
	env.Source.labels = []string{"stake:30", "bounty:20"}
	s, _ := env.Engine.OpenStake(env.Ctx, 8, 101, "alice", "alice")

	resolved, err := env.Engine.ResolveStake(env.Ctx, s.ID, false, "maintainer")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Status != domain.StakeRefunded {
		t.Fatalf("expected refunded, got %s", resolved.Status)
	}
	a, _ := env.Engine.Repo.GetAccount(env.Ctx, "alice")
	if a.CoinBalance != 50 {
		t.Fatalf("expected stake-only refund to 50, got %d", a.CoinBalance)
	}
}

func TestExpireOverdueSweep(t *testing.T) {
	env := newTestEnv(t)
	env.account(t, "alice", 100)
	env.Source.labels = []string{"stake:10"}

	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	env.Engine.Now = func() time.Time { return old }
	env.Engine.Ledger.Now = env.Engine.Now
	stale, err := env.Engine.OpenStake(env.Ctx, 3, 0, "alice", "alice")
	if err != nil {
		t.Fatal(err)
	}

	env.Engine.Now = func() time.Time { return old.AddDate(0, 0, 30) }
	env.Engine.Ledger.Now = env.Engine.Now
	expired, err := env.Engine.ExpireOverdue(env.Ctx, "sweeper")
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(expired) != 1 || expired[0].ID != stale.ID {
		t.Fatalf("expected the stale stake expired, got %+v", expired)
	}
	a, _ := env.Engine.Repo.GetAccount(env.Ctx, "alice")
	if a.CoinBalance != 90 {
		t.Fatalf("forfeited stake must stay locked, got %d", a.CoinBalance)
	}
}
