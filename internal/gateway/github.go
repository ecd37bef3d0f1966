// Package gateway provides GitHub-backed implementations of the engine's
// issue source and sink, wrapping the REST and GraphQL clients behind one
// rate-limit-aware HTTP transport.
package gateway

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/go-github/v62/github"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"

	"bountyline/internal/domain"
)

// GitHubGateway implements engine.IssueSource and engine.IssueSink against
// one repository.
type GitHubGateway struct {
	owner         string
	repo          string
	restClient    *github.Client
	graphqlClient *githubv4.Client
	logger        *log.Logger
}

// linkedPRQuery walks the issue timeline for cross-referenced pull requests.
type linkedPRQuery struct {
	Repository struct {
		Issue struct {
			TimelineItems struct {
				PageInfo struct {
					HasNextPage bool
					EndCursor   githubv4.String
				}
				Nodes []struct {
					CrossReferencedEvent struct {
						Source struct {
							Typename    string `graphql:"__typename"`
							PullRequest struct {
								Number githubv4.Int
								Title  githubv4.String
								State  githubv4.PullRequestState
								Author struct {
									Login githubv4.String
								}
							} `graphql:"... on PullRequest"`
						}
					} `graphql:"... on CrossReferencedEvent"`
				}
			} `graphql:"timelineItems(itemTypes: [CROSS_REFERENCED_EVENT], first: 100, after: $cursor)"`
		} `graphql:"issue(number: $issue)"`
	} `graphql:"repository(owner: $owner, name: $name)"`
}

// New creates a gateway for owner/repo authenticated with the given token.
func New(token, owner, repo string, logger *log.Logger) (*GitHubGateway, error) {
	rateLimitWaiter, err := github_ratelimit.NewRateLimitWaiter(nil, github_ratelimit.WithSingleSleepLimit(1*time.Hour, nil))
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limit waiter: %w", err)
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := &http.Client{
		Transport: &oauth2.Transport{
			Base:   rateLimitWaiter,
			Source: ts,
		},
	}
	if logger == nil {
		logger = log.Default()
	}
	return &GitHubGateway{
		owner:         owner,
		repo:          repo,
		restClient:    github.NewClient(httpClient),
		graphqlClient: githubv4.NewClient(httpClient),
		logger:        logger,
	}, nil
}

// FetchLinkedPRs returns the pull requests cross-referencing the issue.
func (g *GitHubGateway) FetchLinkedPRs(ctx context.Context, issueNumber int) ([]domain.PRRef, error) {
	variables := map[string]interface{}{
		"owner":  githubv4.String(g.owner),
		"name":   githubv4.String(g.repo),
		"issue":  githubv4.Int(issueNumber),
		"cursor": (*githubv4.String)(nil),
	}
	seen := map[int]bool{}
	var refs []domain.PRRef
	for {
		var q linkedPRQuery
		if err := g.graphqlClient.Query(ctx, &q, variables); err != nil {
			return nil, fmt.Errorf("failed to query linked PRs for issue %d: %w", issueNumber, err)
		}
		for _, node := range q.Repository.Issue.TimelineItems.Nodes {
			src := node.CrossReferencedEvent.Source
			if src.Typename != "PullRequest" {
				continue
			}
			number := int(src.PullRequest.Number)
			if number == 0 || seen[number] {
				continue
			}
			seen[number] = true
			refs = append(refs, domain.PRRef{
				Number: number,
				Title:  string(src.PullRequest.Title),
				Author: string(src.PullRequest.Author.Login),
				State:  string(src.PullRequest.State),
			})
		}
		if !q.Repository.Issue.TimelineItems.PageInfo.HasNextPage {
			break
		}
		variables["cursor"] = githubv4.NewString(q.Repository.Issue.TimelineItems.PageInfo.EndCursor)
		g.logger.Println("  Fetching next page of linked pull requests...")
	}
	return refs, nil
}

// FetchDiff returns the raw unified diff of a pull request.
func (g *GitHubGateway) FetchDiff(ctx context.Context, prNumber int) (string, error) {
	diff, _, err := g.restClient.PullRequests.GetRaw(ctx, g.owner, g.repo, prNumber, github.RawOptions{Type: github.Diff})
	if err != nil {
		return "", fmt.Errorf("failed to fetch diff for PR %d: %w", prNumber, err)
	}
	return diff, nil
}

// FetchLabels returns the label names on an issue.
func (g *GitHubGateway) FetchLabels(ctx context.Context, issueNumber int) ([]string, error) {
	opts := &github.ListOptions{PerPage: 100}
	var names []string
	for {
		labels, resp, err := g.restClient.Issues.ListLabelsByIssue(ctx, g.owner, g.repo, issueNumber, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list labels for issue %d: %w", issueNumber, err)
		}
		for _, l := range labels {
			names = append(names, l.GetName())
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return names, nil
}

// ApplyLabels adds labels to an issue.
func (g *GitHubGateway) ApplyLabels(ctx context.Context, issueNumber int, labels []string) error {
	if len(labels) == 0 {
		return nil
	}
	_, _, err := g.restClient.Issues.AddLabelsToIssue(ctx, g.owner, g.repo, issueNumber, labels)
	if err != nil {
		return fmt.Errorf("failed to add labels to issue %d: %w", issueNumber, err)
	}
	return nil
}

// ApplyPRLabels adds labels to a pull request. PRs share the issue label
// endpoint.
func (g *GitHubGateway) ApplyPRLabels(ctx context.Context, prNumber int, labels []string) error {
	return g.ApplyLabels(ctx, prNumber, labels)
}

// RecordAward posts the award summary as a PR comment so the credit is
// visible where the work happened. The ledger committed before this call;
// a failure here only delays the notification.
func (g *GitHubGateway) RecordAward(ctx context.Context, award domain.BonusAward) error {
	body := fmt.Sprintf("### Bonus awarded\n\n@%s earned **%d XP** (overall rating %.1f/10) for this pull request.",
		award.AccountID, award.XPAwarded, award.OverallRating)
	comment := &github.IssueComment{Body: github.String(body)}
	_, _, err := g.restClient.Issues.CreateComment(ctx, g.owner, g.repo, award.PRNumber, comment)
	if err != nil {
		return fmt.Errorf("failed to comment award on PR %d: %w", award.PRNumber, err)
	}
	return nil
}
