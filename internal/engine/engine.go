// Package engine orchestrates issue analysis, bonus awards and the stake
// lifecycle against the collaborator interfaces for GitHub access, AI
// scoring and result persistence.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"bountyline/internal/config"
	"bountyline/internal/domain"
	"bountyline/internal/events"
	"bountyline/internal/ledger"
	"bountyline/internal/priority"
	"bountyline/internal/repo"
	"bountyline/internal/reward"
)

var (
	// ErrScoringUnavailable marks a scorer failure for one PR. Recovered
	// locally with the neutral fallback score; never fails the batch.
	ErrScoringUnavailable = errors.New("scoring unavailable")
	// ErrSinkUnavailable marks a sink write failure after the ledger
	// mutation was committed. The ledger state stays authoritative; only
	// the notification needs a retry.
	ErrSinkUnavailable = errors.New("persistence sink unavailable")
)

// IssueSource fetches issue and PR data.
type IssueSource interface {
	FetchLinkedPRs(ctx context.Context, issueNumber int) ([]domain.PRRef, error)
	FetchDiff(ctx context.Context, prNumber int) (string, error)
	FetchLabels(ctx context.Context, issueNumber int) ([]string, error)
}

// ScoreRequest is the input handed to the scorer for one PR.
type ScoreRequest struct {
	PRNumber   int    `json:"pr_number"`
	Title      string `json:"title"`
	Diff       string `json:"diff"`
	Repository string `json:"repository"`
}

// Scorer produces raw quality scores for a PR. Treated as an opaque trusted
// input; failures surface as ErrScoringUnavailable.
type Scorer interface {
	Score(ctx context.Context, req ScoreRequest) (domain.PRScore, error)
}

// IssueSink receives labels and award notifications.
type IssueSink interface {
	ApplyLabels(ctx context.Context, issueNumber int, labels []string) error
	ApplyPRLabels(ctx context.Context, prNumber int, labels []string) error
	RecordAward(ctx context.Context, award domain.BonusAward) error
}

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Ledger ledger.Ledger
	Events events.Writer
	Config *config.Config
	Source IssueSource
	Scorer Scorer
	Sink   IssueSink
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Ledger: ledger.New(db),
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) repository() string {
	if e.Config == nil {
		return ""
	}
	return e.Config.FullName()
}

// AnalyzeIssue scores every PR linked to the issue, reduces the scores into
// priority labels and persists the result. PR scoring runs concurrently with
// a bounded fan-out; a scorer failure or timeout degrades that one PR to the
// neutral score instead of aborting the batch. The analysis is committed
// before labels are written through the sink, so a sink failure leaves the
// authoritative result intact and only the labels need a retry.
func (e Engine) AnalyzeIssue(ctx context.Context, issueNumber int, actorID string) (domain.IssueAnalysisResult, error) {
	if e.Config == nil {
		return domain.IssueAnalysisResult{}, errors.New("config not loaded")
	}
	if e.Source == nil || e.Scorer == nil {
		return domain.IssueAnalysisResult{}, errors.New("issue source and scorer required")
	}

	prs, err := e.Source.FetchLinkedPRs(ctx, issueNumber)
	if err != nil {
		return domain.IssueAnalysisResult{}, fmt.Errorf("fetch linked PRs for issue %d: %w", issueNumber, err)
	}
	if len(prs) == 0 {
		return domain.IssueAnalysisResult{}, fmt.Errorf("issue %d has no linked pull requests", issueNumber)
	}

	scores, err := e.scorePRs(ctx, prs)
	if err != nil {
		return domain.IssueAnalysisResult{}, err
	}

	assigned := priority.Compute(scores)
	result := domain.IssueAnalysisResult{
		IssueNumber:          issueNumber,
		Repository:           e.repository(),
		PerPRScores:          scores,
		IssuePriority:        assigned.IssuePriority,
		PriorityAssignments:  assigned.Assignments,
		PatternCompliance:    assigned.PatternCompliance,
		CompliancePercentage: assigned.CompliancePercentage,
		CreatedAt:            e.now().UTC().Format(time.RFC3339),
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.IssueAnalysisResult{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertAnalysis(ctx, tx, result); err != nil {
		return domain.IssueAnalysisResult{}, fmt.Errorf("insert analysis: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "issue.analyzed", result.Repository, "issue", strconv.Itoa(issueNumber), actorID, events.EventPayload{
		"issue_priority":        result.IssuePriority,
		"pattern_compliance":    result.PatternCompliance,
		"compliance_percentage": result.CompliancePercentage,
		"pr_count":              len(scores),
	}); err != nil {
		return domain.IssueAnalysisResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.IssueAnalysisResult{}, err
	}

	if e.Sink != nil {
		if err := e.writeLabels(ctx, result, assigned); err != nil {
			return result, fmt.Errorf("%w: %v", ErrSinkUnavailable, err)
		}
	}
	return result, nil
}

// scorePRs fans scoring out over the linked PRs. The slice is indexed by
// input position so concurrent completion cannot reorder results.
func (e Engine) scorePRs(ctx context.Context, prs []domain.PRRef) ([]domain.PRScore, error) {
	scores := make([]domain.PRScore, len(prs))
	timeout := time.Duration(e.Config.Scoring.TimeoutSeconds) * time.Second

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.Config.Scoring.Concurrency)
	for i, pr := range prs {
		g.Go(func() error {
			score, err := e.scoreOne(gctx, pr, timeout)
			if err != nil {
				// Only a cancelled batch propagates; per-PR scorer
				// failures were already replaced by the neutral score.
				return err
			}
			scores[i] = score
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}

func (e Engine) scoreOne(ctx context.Context, pr domain.PRRef, timeout time.Duration) (domain.PRScore, error) {
	if err := ctx.Err(); err != nil {
		return domain.PRScore{}, err
	}
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	diff, err := e.Source.FetchDiff(sctx, pr.Number)
	if err != nil {
		if ctx.Err() != nil {
			return domain.PRScore{}, ctx.Err()
		}
		return priority.Neutral(pr.Number), nil
	}
	score, err := e.Scorer.Score(sctx, ScoreRequest{
		PRNumber:   pr.Number,
		Title:      pr.Title,
		Diff:       diff,
		Repository: e.repository(),
	})
	if err != nil {
		if ctx.Err() != nil {
			return domain.PRScore{}, ctx.Err()
		}
		return priority.Neutral(pr.Number), nil
	}
	score.PRNumber = pr.Number
	return score, nil
}

// writeLabels pushes the issue label pair and per-PR label pairs. All
// writes are attempted; errors are joined so one failed PR does not hide
// the others.
func (e Engine) writeLabels(ctx context.Context, result domain.IssueAnalysisResult, assigned priority.Result) error {
	var errs []error
	issueLabels := []string{result.IssuePriority, priority.ComplianceLabel(result.PatternCompliance)}
	if err := e.Sink.ApplyLabels(ctx, result.IssueNumber, issueLabels); err != nil {
		errs = append(errs, fmt.Errorf("issue %d labels: %w", result.IssueNumber, err))
	}
	for _, pr := range assigned.Ranked {
		labels := []string{pr.Priority, priority.PRComplianceLabel(pr.Score.DesignPatternFollowed)}
		if err := e.Sink.ApplyPRLabels(ctx, pr.Score.PRNumber, labels); err != nil {
			errs = append(errs, fmt.Errorf("PR %d labels: %w", pr.Score.PRNumber, err))
		}
	}
	return errors.Join(errs...)
}

// AwardBonusOptions are parameters for a bonus award.
type AwardBonusOptions struct {
	PRNumber   int
	AccountID  string
	Dimensions reward.Dimensions
	Bonuses    reward.Bonuses
	ActorID    string
}

// AwardBonus computes the XP award and commits it to the ledger, then
// notifies the sink. The ledger commit is strictly first: a crash or sink
// failure afterwards leaves the authoritative balance correct with only the
// notification left to retry. Awarding the same PR twice fails with
// ErrDuplicateAward.
func (e Engine) AwardBonus(ctx context.Context, opts AwardBonusOptions) (domain.BonusAward, domain.Account, error) {
	if opts.PRNumber <= 0 {
		return domain.BonusAward{}, domain.Account{}, errors.New("pr number required")
	}
	if opts.AccountID == "" {
		return domain.BonusAward{}, domain.Account{}, errors.New("account id required")
	}
	res := reward.Compute(opts.Dimensions, opts.Bonuses)
	award := domain.BonusAward{
		PRNumber:      opts.PRNumber,
		AccountID:     opts.AccountID,
		XPAwarded:     res.RecommendedXP,
		OverallRating: res.OverallRating,
		AwardedBy:     opts.ActorID,
	}
	award, acct, err := e.Ledger.Award(ctx, award, opts.ActorID)
	if err != nil {
		return domain.BonusAward{}, domain.Account{}, err
	}
	if e.Sink != nil {
		if err := e.Sink.RecordAward(ctx, award); err != nil {
			return award, acct, fmt.Errorf("%w: record award for PR #%d: %v", ErrSinkUnavailable, award.PRNumber, err)
		}
	}
	return award, acct, nil
}

// OpenStake locks coins for a contributor opening a PR against a
// stake-labeled issue. Stake amount comes from the issue's "stake:<n>"
// label; an issue without one is not stakeable.
func (e Engine) OpenStake(ctx context.Context, issueNumber, prNumber int, accountID, actorID string) (domain.StakedIssue, error) {
	if e.Config == nil {
		return domain.StakedIssue{}, errors.New("config not loaded")
	}
	if e.Source == nil {
		return domain.StakedIssue{}, errors.New("issue source required")
	}
	labels, err := e.Source.FetchLabels(ctx, issueNumber)
	if err != nil {
		return domain.StakedIssue{}, fmt.Errorf("fetch labels for issue %d: %w", issueNumber, err)
	}
	amount, ok := labelAmount(labels, e.Config.Staking.StakeLabelPrefix)
	if !ok {
		return domain.StakedIssue{}, fmt.Errorf("issue %d carries no %s<amount> label", issueNumber, e.Config.Staking.StakeLabelPrefix)
	}
	if amount <= 0 {
		amount = e.Config.Staking.DefaultStake
	}
	var linked *int
	if prNumber > 0 {
		linked = &prNumber
	}
	return e.Ledger.Lock(ctx, ledger.LockOptions{
		AccountID:      accountID,
		IssueNumber:    issueNumber,
		Repository:     e.repository(),
		Amount:         amount,
		LinkedPRNumber: linked,
		ActorID:        actorID,
	})
}

// ResolveStake closes out an active stake. A merged PR completes the stake
// and pays the issue's bounty on top of the returned stake; a PR closed
// without merge refunds the stake only.
func (e Engine) ResolveStake(ctx context.Context, stakeID string, merged bool, actorID string) (domain.StakedIssue, error) {
	if e.Config == nil {
		return domain.StakedIssue{}, errors.New("config not loaded")
	}
	s, err := e.Repo.GetStake(ctx, stakeID)
	if err != nil {
		return domain.StakedIssue{}, err
	}
	outcome := ledger.OutcomeRefunded
	bounty := 0
	if merged {
		outcome = ledger.OutcomeCompleted
		bounty = e.bountyFor(ctx, s.IssueNumber)
	}
	return e.Ledger.Release(ctx, stakeID, s.AccountID, bounty, outcome, actorID)
}

// bountyFor reads the bounty amount from the issue labels, falling back to
// the configured default when labels cannot be fetched or none is set.
func (e Engine) bountyFor(ctx context.Context, issueNumber int) int {
	if e.Source == nil {
		return e.Config.Staking.DefaultBounty
	}
	labels, err := e.Source.FetchLabels(ctx, issueNumber)
	if err != nil {
		return e.Config.Staking.DefaultBounty
	}
	if amount, ok := labelAmount(labels, e.Config.Staking.BountyLabelPrefix); ok && amount > 0 {
		return amount
	}
	return e.Config.Staking.DefaultBounty
}

// ExpireStake forfeits one stake whose deadline elapsed. Scheduling is the
// caller's concern; the ledger only enforces that the transition is legal.
func (e Engine) ExpireStake(ctx context.Context, stakeID, actorID string) (domain.StakedIssue, error) {
	return e.Ledger.Forfeit(ctx, stakeID, actorID)
}

// ExpireOverdue forfeits every active stake older than the configured
// expiry window. Returns the stakes that were expired.
func (e Engine) ExpireOverdue(ctx context.Context, actorID string) ([]domain.StakedIssue, error) {
	if e.Config == nil {
		return nil, errors.New("config not loaded")
	}
	cutoff := e.now().UTC().AddDate(0, 0, -e.Config.Staking.ExpiryDays).Format(time.RFC3339)
	overdue, err := e.Repo.ActiveStakesBefore(ctx, e.repository(), cutoff)
	if err != nil {
		return nil, err
	}
	var expired []domain.StakedIssue
	for _, s := range overdue {
		forfeited, err := e.Ledger.Forfeit(ctx, s.ID, actorID)
		if err != nil {
			// A stake resolved between the read and the forfeit is fine;
			// anything else aborts the sweep.
			if errors.Is(err, ledger.ErrInvalidTransition) {
				continue
			}
			return expired, err
		}
		expired = append(expired, forfeited)
	}
	return expired, nil
}

// labelAmount parses "<prefix><n>" labels, e.g. "stake:30".
func labelAmount(labels []string, prefix string) (int, bool) {
	for _, l := range labels {
		rest, ok := strings.CutPrefix(strings.TrimSpace(l), prefix)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(rest))
		if err != nil {
			continue
		}
		return n, true
	}
	return 0, false
}
