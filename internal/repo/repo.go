package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"bountyline/internal/config"
	"bountyline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// --- accounts ---

const accountColumns = `id,coin_balance,xp,rank,active,created_at,updated_at`

func scanAccount(row *sql.Row) (domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.CoinBalance, &a.XP, &a.Rank, &a.Active, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

func (r Repo) InsertAccount(ctx context.Context, tx *sql.Tx, a domain.Account) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO accounts(`+accountColumns+`) VALUES (?,?,?,?,?,?,?)`,
		a.ID, a.CoinBalance, a.XP, a.Rank, a.Active, a.CreatedAt, a.UpdatedAt)
	return err
}

func (r Repo) GetAccount(ctx context.Context, id string) (domain.Account, error) {
	return scanAccount(r.DB.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=?`, id))
}

func (r Repo) GetAccountTx(ctx context.Context, tx *sql.Tx, id string) (domain.Account, error) {
	return scanAccount(tx.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=?`, id))
}

func (r Repo) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY xp DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Account
	for rows.Next() {
		var a domain.Account
		if err := rows.Scan(&a.ID, &a.CoinBalance, &a.XP, &a.Rank, &a.Active, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// DebitCoins subtracts amount only if the balance covers it. Returns false
// when the balance was insufficient. The conditional update keeps the
// balance invariant even under concurrent debits.
func (r Repo) DebitCoins(ctx context.Context, tx *sql.Tx, accountID string, amount int, now string) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE accounts SET coin_balance = coin_balance - ?, updated_at = ? WHERE id = ? AND coin_balance >= ?`,
		amount, now, accountID, amount)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r Repo) CreditCoins(ctx context.Context, tx *sql.Tx, accountID string, amount int, now string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE accounts SET coin_balance = coin_balance + ?, updated_at = ? WHERE id = ?`,
		amount, now, accountID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetXP writes xp together with the rank derived from it.
func (r Repo) SetXP(ctx context.Context, tx *sql.Tx, accountID string, xp int, rank, now string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE accounts SET xp = ?, rank = ?, updated_at = ? WHERE id = ?`,
		xp, rank, now, accountID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) SetAccountActive(ctx context.Context, id string, active bool, now string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE accounts SET active = ?, updated_at = ? WHERE id = ?`, active, now, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- staked issues ---

const stakeColumns = `id,issue_number,repository,account_id,stake_amount,status,linked_pr_number,created_at,resolved_at`

func scanStake(row *sql.Row) (domain.StakedIssue, error) {
	var s domain.StakedIssue
	var pr sql.NullInt64
	var resolved sql.NullString
	err := row.Scan(&s.ID, &s.IssueNumber, &s.Repository, &s.AccountID, &s.StakeAmount, &s.Status, &pr, &s.CreatedAt, &resolved)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if pr.Valid {
		n := int(pr.Int64)
		s.LinkedPRNumber = &n
	}
	if resolved.Valid {
		s.ResolvedAt = &resolved.String
	}
	return s, err
}

func (r Repo) InsertStake(ctx context.Context, tx *sql.Tx, s domain.StakedIssue) error {
	var pr any
	if s.LinkedPRNumber != nil {
		pr = *s.LinkedPRNumber
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO staked_issues(`+stakeColumns+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		s.ID, s.IssueNumber, s.Repository, s.AccountID, s.StakeAmount, s.Status, pr, s.CreatedAt, nullable(stringOrEmpty(s.ResolvedAt)))
	return err
}

func (r Repo) GetStake(ctx context.Context, id string) (domain.StakedIssue, error) {
	return scanStake(r.DB.QueryRowContext(ctx, `SELECT `+stakeColumns+` FROM staked_issues WHERE id=?`, id))
}

func (r Repo) GetStakeTx(ctx context.Context, tx *sql.Tx, id string) (domain.StakedIssue, error) {
	return scanStake(tx.QueryRowContext(ctx, `SELECT `+stakeColumns+` FROM staked_issues WHERE id=?`, id))
}

// SetStakeStatus moves a stake out of active. The WHERE clause refuses to
// touch terminal rows so retried resolutions cannot double-credit.
func (r Repo) SetStakeStatus(ctx context.Context, tx *sql.Tx, id, status, resolvedAt string) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE staked_issues SET status = ?, resolved_at = ? WHERE id = ? AND status = ?`,
		status, resolvedAt, id, domain.StakeActive)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r Repo) ListStakes(ctx context.Context, repository, status string) ([]domain.StakedIssue, error) {
	clauses := []string{"repository=?"}
	args := []any{repository}
	if status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, status)
	}
	query := `SELECT ` + stakeColumns + ` FROM staked_issues WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, id`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectStakes(rows)
}

// ActiveStakesBefore returns active stakes created at or before the cutoff,
// for the expiry sweep.
func (r Repo) ActiveStakesBefore(ctx context.Context, repository, cutoff string) ([]domain.StakedIssue, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+stakeColumns+` FROM staked_issues WHERE repository=? AND status=? AND created_at <= ? ORDER BY created_at, id`,
		repository, domain.StakeActive, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectStakes(rows)
}

func collectStakes(rows *sql.Rows) ([]domain.StakedIssue, error) {
	var res []domain.StakedIssue
	for rows.Next() {
		var s domain.StakedIssue
		var pr sql.NullInt64
		var resolved sql.NullString
		if err := rows.Scan(&s.ID, &s.IssueNumber, &s.Repository, &s.AccountID, &s.StakeAmount, &s.Status, &pr, &s.CreatedAt, &resolved); err != nil {
			return nil, err
		}
		if pr.Valid {
			n := int(pr.Int64)
			s.LinkedPRNumber = &n
		}
		if resolved.Valid {
			s.ResolvedAt = &resolved.String
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// --- bonus awards ---

const awardColumns = `id,pr_number,account_id,xp_awarded,overall_rating,awarded_by,awarded_at`

func (r Repo) InsertAward(ctx context.Context, tx *sql.Tx, a domain.BonusAward) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO bonus_awards(`+awardColumns+`) VALUES (?,?,?,?,?,?,?)`,
		a.ID, a.PRNumber, a.AccountID, a.XPAwarded, a.OverallRating, a.AwardedBy, a.AwardedAt)
	return err
}

func (r Repo) GetAwardByPR(ctx context.Context, prNumber int) (domain.BonusAward, error) {
	return scanAward(r.DB.QueryRowContext(ctx, `SELECT `+awardColumns+` FROM bonus_awards WHERE pr_number=?`, prNumber))
}

func (r Repo) GetAwardByPRTx(ctx context.Context, tx *sql.Tx, prNumber int) (domain.BonusAward, error) {
	return scanAward(tx.QueryRowContext(ctx, `SELECT `+awardColumns+` FROM bonus_awards WHERE pr_number=?`, prNumber))
}

func scanAward(row *sql.Row) (domain.BonusAward, error) {
	var a domain.BonusAward
	err := row.Scan(&a.ID, &a.PRNumber, &a.AccountID, &a.XPAwarded, &a.OverallRating, &a.AwardedBy, &a.AwardedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

func (r Repo) ListAwards(ctx context.Context, accountID string) ([]domain.BonusAward, error) {
	clauses := "1=1"
	args := []any{}
	if accountID != "" {
		clauses = "account_id=?"
		args = append(args, accountID)
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+awardColumns+` FROM bonus_awards WHERE `+clauses+` ORDER BY awarded_at DESC, pr_number`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.BonusAward
	for rows.Next() {
		var a domain.BonusAward
		if err := rows.Scan(&a.ID, &a.PRNumber, &a.AccountID, &a.XPAwarded, &a.OverallRating, &a.AwardedBy, &a.AwardedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// --- issue analyses ---

func (r Repo) InsertAnalysis(ctx context.Context, tx *sql.Tx, res domain.IssueAnalysisResult) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO issue_analyses(issue_number,repository,result_json,created_at) VALUES (?,?,?,?)`,
		res.IssueNumber, res.Repository, string(payload), res.CreatedAt)
	return err
}

func (r Repo) LatestAnalysis(ctx context.Context, repository string, issueNumber int) (domain.IssueAnalysisResult, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx,
		`SELECT result_json FROM issue_analyses WHERE repository=? AND issue_number=? ORDER BY id DESC LIMIT 1`,
		repository, issueNumber).Scan(&payload)
	if err == sql.ErrNoRows {
		return domain.IssueAnalysisResult{}, ErrNotFound
	}
	if err != nil {
		return domain.IssueAnalysisResult{}, err
	}
	var res domain.IssueAnalysisResult
	if err := json.Unmarshal([]byte(payload), &res); err != nil {
		return domain.IssueAnalysisResult{}, fmt.Errorf("unmarshal analysis: %w", err)
	}
	return res, nil
}

// --- repo configs ---

func (r Repo) UpsertRepoConfig(ctx context.Context, repository string, cfg *config.Config) error {
	return upsertRepoConfig(ctx, r.DB, nil, repository, cfg)
}

func (r Repo) UpsertRepoConfigTx(ctx context.Context, tx *sql.Tx, repository string, cfg *config.Config) error {
	return upsertRepoConfig(ctx, nil, tx, repository, cfg)
}

func upsertRepoConfig(ctx context.Context, db *sql.DB, tx *sql.Tx, repository string, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return db.ExecContext(ctx, query, args...)
	}
	_, err = exec(`INSERT INTO repo_configs(repository,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(repository) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, repository, string(payload), now, now)
	return err
}

func (r Repo) GetRepoConfig(ctx context.Context, repository string) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM repo_configs WHERE repository=?`, repository).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	return &cfg, cfg.Validate()
}

func (r Repo) ListRepositories(ctx context.Context) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT repository FROM repo_configs ORDER BY repository`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var repo string
		if err := rows.Scan(&repo); err != nil {
			return nil, err
		}
		res = append(res, repo)
	}
	return res, rows.Err()
}

// --- counts for status ---

func (r Repo) CountStakesByStatus(ctx context.Context, repository string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM staked_issues WHERE repository=? GROUP BY status`, repository)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (r Repo) CountAccounts(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&n)
	return n, err
}

func (r Repo) CountAwards(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM bonus_awards`).Scan(&n)
	return n, err
}

// --- events ---

func (r Repo) LatestEvents(ctx context.Context, limit int, repository, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if repository != "" {
		clauses = append(clauses, "repository=?")
		args = append(args, repository)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id,ts,type,COALESCE(repository,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

// EventsAfter returns up to limit events with id greater than cursor, oldest
// first. Used by the mirror dispatcher. Account and XP events carry no
// repository and are always included.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, repository string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id,ts,type,COALESCE(repository,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE id > ? AND (repository = ? OR repository IS NULL OR repository = '') ORDER BY id LIMIT ?`,
		cursor, repository, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

// LatestEventID returns the highest event id, or 0 when the log is empty.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id int64
	err := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`).Scan(&id)
	return id, err
}

func collectEvents(rows *sql.Rows) ([]domain.Event, error) {
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.Repository, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// --- helpers ---

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
