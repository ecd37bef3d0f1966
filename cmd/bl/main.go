package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bountyline/internal/app"
	"bountyline/internal/config"
	"bountyline/internal/db"
	"bountyline/internal/engine"
	"bountyline/internal/gateway"
	"bountyline/internal/migrate"
	"bountyline/internal/rank"
	"bountyline/internal/repo"
	"bountyline/internal/reward"
	"bountyline/internal/scorer"
	"bountyline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "bl",
	Short: "Bountyline CLI",
	Long: `Bountyline runs a contribution economy for a GitHub repository.
Core concepts:
- Workspace: your .bountyline directory with only the database; configs are stored in the DB and imported explicitly.
- Accounts: each contributor has a coin balance, XP, and a rank derived from XP.
- Stakes: opening a PR against a "stake:<n>" issue locks coins; a merged PR returns them plus the issue's bounty, an abandoned PR refunds them, an expired one forfeits them.
- Analysis: 'bl issue analyze' scores every PR linked to an issue and assigns Priority-1..4 labels, plus design-pattern compliance.
- Awards: 'bl award' converts a review's quality scores into a one-time XP credit per PR.
- Ranks: Newcomer through Legend, recomputed from XP on every award.
- Event log: diary of changes, view with 'bl log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("BOUNTYLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("repo", "", "repository owner/name (overrides config default)")
	rootCmd.PersistentFlags().String("github-token", "", "GitHub token for live issue and PR access")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("repo", rootCmd.PersistentFlags().Lookup("repo"))
	_ = viper.BindPFlag("github-token", rootCmd.PersistentFlags().Lookup("github-token"))
}

func registerCommands() {
	rootCmd.AddCommand(accountCmd())
	rootCmd.AddCommand(stakeCmd())
	rootCmd.AddCommand(issueCmd())
	rootCmd.AddCommand(awardCmd())
	rootCmd.AddCommand(rankCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func accountCmd() *cobra.Command {
	acc := &cobra.Command{Use: "account", Short: "Manage contributor accounts"}
	acc.AddCommand(accountCreateCmd())
	acc.AddCommand(accountListCmd())
	acc.AddCommand(accountShowCmd())
	acc.AddCommand(accountAwardsCmd())
	return acc
}

func accountCreateCmd() *cobra.Command {
	var id string
	var coins int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.Ledger.EnsureAccount(ctx, id, coins, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "account id (GitHub login)")
	cmd.Flags().IntVar(&coins, "coins", 0, "initial coin balance")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func accountListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAccounts(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Coins", "XP", "Rank", "Active"})
				for _, a := range items {
					tw.AppendRow(table.Row{a.ID, a.CoinBalance, a.XP, a.Rank, a.Active})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func accountShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				a, err := r.GetAccount(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func accountAwardsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "awards <id>",
		Short: "List an account's bonus awards",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAwards(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"PR", "XP", "Rating", "Awarded By", "Awarded At"})
				for _, a := range items {
					tw.AppendRow(table.Row{a.PRNumber, a.XPAwarded, a.OverallRating, a.AwardedBy, a.AwardedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func stakeCmd() *cobra.Command {
	st := &cobra.Command{Use: "stake", Short: "Manage issue stakes"}
	st.AddCommand(stakeOpenCmd())
	st.AddCommand(stakeListCmd())
	st.AddCommand(stakeShowCmd())
	st.AddCommand(stakeResolveCmd())
	st.AddCommand(stakeExpireCmd())
	st.AddCommand(stakeSweepCmd())
	return st
}

func stakeOpenCmd() *cobra.Command {
	var issue, pr int
	var accountID string
	cmd := &cobra.Command{
		Use:   "open",
		Short: "Open a stake against an issue",
		RunE: func(cmd *cobra.Command, args []string) error {
			if issue <= 0 {
				return fmt.Errorf("--issue required")
			}
			if accountID == "" {
				return fmt.Errorf("--account required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.OpenStake(ctx, issue, pr, accountID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().IntVar(&issue, "issue", 0, "issue number")
	cmd.Flags().IntVar(&pr, "pr", 0, "linked pull request number")
	cmd.Flags().StringVar(&accountID, "account", "", "staking account id")
	_ = cmd.MarkFlagRequired("issue")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}

func stakeListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stakes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListStakes(ctx, e.Config.FullName(), status)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Issue", "Account", "Amount", "Status", "PR"})
				for _, s := range items {
					pr := ""
					if s.LinkedPRNumber != nil {
						pr = strconv.Itoa(*s.LinkedPRNumber)
					}
					tw.AppendRow(table.Row{s.ID, s.IssueNumber, s.AccountID, s.StakeAmount, s.Status, pr})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter (active, completed, refunded, expired)")
	return cmd
}

func stakeShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a stake",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				s, err := r.GetStake(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	return cmd
}

func stakeResolveCmd() *cobra.Command {
	var merged bool
	cmd := &cobra.Command{
		Use:   "resolve <id>",
		Short: "Resolve a stake after its PR closed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.ResolveStake(ctx, args[0], merged, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().BoolVar(&merged, "merged", false, "PR was merged (completes the stake and pays the bounty)")
	return cmd
}

func stakeExpireCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expire <id>",
		Short: "Forfeit a stake whose deadline elapsed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.ExpireStake(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	return cmd
}

func stakeSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Forfeit every active stake past the expiry window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				expired, err := e.ExpireOverdue(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				fmt.Printf("expired %d stake(s)\n", len(expired))
				return printJSONOrTable(expired)
			})
		},
	}
	return cmd
}

func issueCmd() *cobra.Command {
	iss := &cobra.Command{Use: "issue", Short: "Analyze issues"}
	iss.AddCommand(issueAnalyzeCmd())
	iss.AddCommand(issueAnalysisCmd())
	return iss
}

func issueAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <number>",
		Short: "Score an issue's linked PRs and assign priorities",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			issue, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("issue number must be numeric: %w", err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				result, err := e.AnalyzeIssue(ctx, issue, viper.GetString("actor-id"))
				if err != nil {
					if errors.Is(err, engine.ErrSinkUnavailable) {
						fmt.Println("warning: analysis saved but labels were not applied:", err)
						return printJSONOrTable(result)
					}
					return err
				}
				return printJSONOrTable(result)
			})
		},
	}
	return cmd
}

func issueAnalysisCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analysis <number>",
		Short: "Show the latest stored analysis for an issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			issue, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("issue number must be numeric: %w", err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				result, err := e.Repo.LatestAnalysis(ctx, e.Config.FullName(), issue)
				if err != nil {
					return err
				}
				return printJSONOrTable(result)
			})
		},
	}
	return cmd
}

func awardCmd() *cobra.Command {
	var pr int
	var accountID string
	var correctness, clarity, maintainability, testing, documentation int
	var testsAdded, docsUpdated, conventions, issueResolved bool
	cmd := &cobra.Command{
		Use:   "award",
		Short: "Award bonus XP for a reviewed PR",
		RunE: func(cmd *cobra.Command, args []string) error {
			if pr <= 0 {
				return fmt.Errorf("--pr required")
			}
			if accountID == "" {
				return fmt.Errorf("--account required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				award, acct, err := e.AwardBonus(ctx, engine.AwardBonusOptions{
					PRNumber:  pr,
					AccountID: accountID,
					Dimensions: reward.Dimensions{
						Correctness:     correctness,
						Clarity:         clarity,
						Maintainability: maintainability,
						Testing:         testing,
						Documentation:   documentation,
					},
					Bonuses: reward.Bonuses{
						TestsAdded:          testsAdded,
						DocsUpdated:         docsUpdated,
						ConventionsFollowed: conventions,
						IssueResolved:       issueResolved,
					},
					ActorID: viper.GetString("actor-id"),
				})
				if err != nil {
					if errors.Is(err, engine.ErrSinkUnavailable) {
						fmt.Println("warning: award recorded but GitHub notification failed:", err)
					} else {
						return err
					}
				}
				return printJSONOrTable(map[string]any{"award": award, "account": acct})
			})
		},
	}
	cmd.Flags().IntVar(&pr, "pr", 0, "pull request number")
	cmd.Flags().StringVar(&accountID, "account", "", "account to credit")
	cmd.Flags().IntVar(&correctness, "correctness", 0, "correctness score 0-5")
	cmd.Flags().IntVar(&clarity, "clarity", 0, "clarity score 0-5")
	cmd.Flags().IntVar(&maintainability, "maintainability", 0, "maintainability score 0-5")
	cmd.Flags().IntVar(&testing, "testing", 0, "testing score 0-5")
	cmd.Flags().IntVar(&documentation, "documentation", 0, "documentation score 0-5")
	cmd.Flags().BoolVar(&testsAdded, "tests-added", false, "tests were added")
	cmd.Flags().BoolVar(&docsUpdated, "docs-updated", false, "docs were updated")
	cmd.Flags().BoolVar(&conventions, "conventions-followed", false, "conventions were followed")
	cmd.Flags().BoolVar(&issueResolved, "issue-resolved", false, "the linked issue was resolved")
	_ = cmd.MarkFlagRequired("pr")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}

func rankCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rank [account]",
		Short: "Show rank thresholds, or one account's progress",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
					a, err := r.GetAccount(ctx, args[0])
					if err != nil {
						return err
					}
					return printJSONOrTable(map[string]any{
						"account":         a.ID,
						"xp":              a.XP,
						"rank":            a.Rank,
						"xp_to_next_rank": rank.ToNext(a.XP),
					})
				})
			}
			rows := rank.Thresholds()
			if viper.GetBool("json") {
				return printJSON(rows)
			}
			for _, row := range rows {
				fmt.Printf("%-13s %d XP\n", row.Name, row.MinXP)
			}
			return nil
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage repository config"}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configImportCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show repository config stored in DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
	return cmd
}

func configImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import repository config from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromFile(filePath)
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if err := r.UpsertRepoConfig(ctx, cfg.FullName(), cfg); err != nil {
					return err
				}
				return printJSONOrTable(cfg)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func configInitCmd() *cobra.Command {
	var owner, name string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Print a default bountyline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			if owner == "" || name == "" {
				return fmt.Errorf("--owner and --name required")
			}
			fmt.Print(config.GenerateDefault(owner, name))
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "repository owner")
	cmd.Flags().StringVar(&name, "name", "", "repository name")
	return cmd
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show repository economy status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				stakeCounts, err := e.Repo.CountStakesByStatus(ctx, e.Config.FullName())
				if err != nil {
					return err
				}
				accounts, err := e.Repo.CountAccounts(ctx)
				if err != nil {
					return err
				}
				awards, err := e.Repo.CountAwards(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"repository":   e.Config.FullName(),
					"stake_counts": stakeCounts,
					"accounts":     accounts,
					"awards":       awards,
				})
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, "", evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			_, cfg, err := app.ResolveRepoAndConfig(cmd.Context(), viper.GetString("repo"), r)
			if err != nil {
				return err
			}
			e := buildEngine(conn, cfg)
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("BOUNTYLINE_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("BOUNTYLINE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Bountyline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	_, cfg, err := app.ResolveRepoAndConfig(ctx, viper.GetString("repo"), r)
	if err != nil {
		return err
	}
	return fn(ctx, buildEngine(conn, cfg))
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

// buildEngine wires the GitHub gateway and scorer into the engine when
// credentials and endpoints are configured. Without a token the engine still
// serves ledger operations; only live issue access is disabled.
func buildEngine(conn *sql.DB, cfg *config.Config) engine.Engine {
	e := engine.New(conn, cfg)
	if token := viper.GetString("github-token"); token != "" {
		gw, err := gateway.New(token, cfg.Repository.Owner, cfg.Repository.Name, nil)
		if err != nil {
			fmt.Println("warning: GitHub gateway disabled:", err)
		} else {
			e.Source = gw
			e.Sink = gw
		}
	}
	if cfg.Scoring.Endpoint != "" {
		e.Scorer = scorer.NewClient(cfg.Scoring.Endpoint)
	} else {
		e.Scorer = scorer.Static{}
	}
	return e
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
