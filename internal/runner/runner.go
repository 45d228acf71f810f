// Package runner implements the daily billing evaluation: it walks every
// active tenant's client base, matches the billing rule catalog against
// each client snapshot, and enqueues one dispatch per (rule, client,
// window) for the message worker.
//
// The run is idempotent. Re-running the same day re-evaluates everything
// but the dispatch table's uniqueness on (rule, client, window_key)
// collapses repeats into dedup skips.
package runner

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"revenda/internal/billingrules"
	"revenda/internal/config"
	"revenda/internal/types"
)

// OrgStore resolves which tenants a run covers.
type OrgStore interface {
	GetByID(ctx context.Context, orgID string) (*types.Organization, error)
	ListActive(ctx context.Context) ([]types.Organization, error)
}

// RuleStore loads the rule catalog for one tenant.
type RuleStore interface {
	GetByID(ctx context.Context, orgID, ruleID string) (*types.BillingRule, error)
	ListAll(ctx context.Context, orgID string) ([]types.BillingRule, error)
}

// ClientStore pages through a tenant's client base.
type ClientStore interface {
	ListForEvaluation(ctx context.Context, orgID, afterID string, limit int) ([]types.Client, error)
}

// DispatchStore records pending dispatches.
type DispatchStore interface {
	InsertPending(ctx context.Context, d *types.DispatchRecord) (created bool, err error)
}

// Publisher hands created dispatches to the queue.
type Publisher interface {
	SendBatch(ctx context.Context, messages []types.DispatchMessage) error
}

// AutomationGate decides whether a tenant's automation may run. Implemented
// by the SaaS subscription gate; tenants failing the check are skipped, not
// failed.
type AutomationGate interface {
	CheckAutomation(org *types.Organization, now time.Time) error
}

// Deps bundles the collaborators a BillingRunner needs.
type Deps struct {
	Orgs       OrgStore
	Rules      RuleStore
	Clients    ClientStore
	Dispatches DispatchStore
	Publisher  Publisher
	Gate       AutomationGate
	Metrics    RunMetrics
	Clock      types.Clock
	Logger     *slog.Logger
}

// BillingRunner orchestrates billing runs across tenants.
type BillingRunner struct {
	deps Deps
	cfg  config.RunnerConfig
}

// NewBillingRunner wires a runner. Nil Clock, Metrics, and Logger fall back
// to real time, no-op metrics, and the default logger.
func NewBillingRunner(deps Deps, cfg config.RunnerConfig) *BillingRunner {
	if deps.Clock == nil {
		deps.Clock = types.RealClock{}
	}
	if deps.Metrics == nil {
		deps.Metrics = NoopRunMetrics{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.ClientPageSize <= 0 {
		cfg.ClientPageSize = 500
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &BillingRunner{deps: deps, cfg: cfg}
}

// RunParams selects what a run covers.
type RunParams struct {
	// OrganizationID restricts the run to one tenant. Empty means every
	// active tenant.
	OrganizationID string

	// Today overrides the evaluation date. Zero means the current day.
	Today time.Time

	// DryRun evaluates and counts without creating dispatches or touching
	// the queue.
	DryRun bool
}

// runTally accumulates counters across concurrent per-tenant evaluations.
type runTally struct {
	mu               sync.Mutex
	clientsEvaluated int
	rulesMatched     int
	created          int
	skippedDedup     int
	badRules         map[string]struct{}
}

func (t *runTally) addClient(matched int) {
	t.mu.Lock()
	t.clientsEvaluated++
	t.rulesMatched += matched
	t.mu.Unlock()
}

func (t *runTally) addCreated() {
	t.mu.Lock()
	t.created++
	t.mu.Unlock()
}

func (t *runTally) addSkipped() {
	t.mu.Lock()
	t.skippedDedup++
	t.mu.Unlock()
}

// noteDiagnostics records misconfigured rules, counted once per rule per
// run no matter how many clients hit them.
func (t *runTally) noteDiagnostics(diags []billingrules.RuleDiagnostic) {
	if len(diags) == 0 {
		return
	}
	t.mu.Lock()
	if t.badRules == nil {
		t.badRules = make(map[string]struct{})
	}
	for _, d := range diags {
		t.badRules[d.RuleID] = struct{}{}
	}
	t.mu.Unlock()
}

// Run executes one billing evaluation and returns its report. A non-nil
// error means at least one tenant failed mid-run; dispatches already
// created stay created, and the next run dedups past them.
func (r *BillingRunner) Run(ctx context.Context, params RunParams) (*types.RunReport, error) {
	runID := "run_" + uuid.New().String()
	today := params.Today
	if today.IsZero() {
		today = r.deps.Clock.Now()
	}

	logger := r.deps.Logger.With(
		slog.String("run_id", runID),
		slog.String("run_date", today.Format("2006-01-02")),
		slog.Bool("dry_run", params.DryRun),
	)

	orgs, err := r.resolveOrgs(ctx, params.OrganizationID)
	if err != nil {
		return nil, err
	}

	started := r.deps.Clock.Now()
	matcher := billingrules.NewMatcher(nil)
	tally := &runTally{}

	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)

	for i := range orgs {
		org := orgs[i]

		if r.deps.Gate != nil {
			if gateErr := r.deps.Gate.CheckAutomation(&org, today); gateErr != nil {
				logger.InfoContext(ctx, "skipping tenant: automation not allowed",
					slog.String("organization_id", org.ID),
					slog.String("reason", gateErr.Error()),
				)
				continue
			}
		}

		g.Go(func() error {
			return r.runOrg(groupCtx, logger, matcher, &org, runID, today, params.DryRun, tally)
		})
	}

	runErr := g.Wait()

	tally.mu.Lock()
	report := &types.RunReport{
		RunID:             runID,
		Date:              today,
		ClientsEvaluated:  tally.clientsEvaluated,
		RulesMatched:      tally.rulesMatched,
		DispatchesCreated: tally.created,
		SkippedDedup:      tally.skippedDedup,
		RuleConfigErrors:  len(tally.badRules),
		DryRun:            params.DryRun,
	}
	tally.mu.Unlock()

	duration := r.deps.Clock.Now().Sub(started)
	r.deps.Metrics.RecordRun(ctx, *report, duration)

	logger.InfoContext(ctx, "billing run finished",
		slog.Int("clients_evaluated", report.ClientsEvaluated),
		slog.Int("rules_matched", report.RulesMatched),
		slog.Int("dispatches_created", report.DispatchesCreated),
		slog.Int("skipped_dedup", report.SkippedDedup),
		slog.Int("rule_config_errors", report.RuleConfigErrors),
		slog.Duration("duration", duration),
	)

	return report, runErr
}

func (r *BillingRunner) resolveOrgs(ctx context.Context, orgID string) ([]types.Organization, error) {
	if orgID != "" {
		org, err := r.deps.Orgs.GetByID(ctx, orgID)
		if err != nil {
			return nil, err
		}
		return []types.Organization{*org}, nil
	}
	return r.deps.Orgs.ListActive(ctx)
}

// runOrg evaluates one tenant: loads the rule catalog once, then walks the
// client base in keyset pages, publishing each page's dispatches before
// moving to the next so queue lag stays bounded.
func (r *BillingRunner) runOrg(
	ctx context.Context,
	logger *slog.Logger,
	matcher *billingrules.Matcher,
	org *types.Organization,
	runID string,
	today time.Time,
	dryRun bool,
	tally *runTally,
) error {
	rules, err := r.deps.Rules.ListAll(ctx, org.ID)
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		return nil
	}

	afterID := ""
	for {
		clients, err := r.deps.Clients.ListForEvaluation(ctx, org.ID, afterID, r.cfg.ClientPageSize)
		if err != nil {
			return err
		}
		if len(clients) == 0 {
			return nil
		}

		var batch []types.DispatchMessage
		for i := range clients {
			client := &clients[i]
			result := matcher.MatchAll(client, rules, today)
			tally.addClient(len(result.Matched))
			tally.noteDiagnostics(result.Diagnostics)

			// First match wins per template: two rules resolving to the
			// same template produce one message, in catalog order.
			seenTemplates := make(map[string]struct{}, len(result.Matched))
			for j := range result.Matched {
				rule := &result.Matched[j]
				if _, dup := seenTemplates[rule.MessageTemplateID]; dup {
					continue
				}
				seenTemplates[rule.MessageTemplateID] = struct{}{}

				msg, created, err := r.createDispatch(ctx, org.ID, client, rule, today, types.DispatchReasonScheduled, runID, dryRun)
				if err != nil {
					return err
				}
				if !created {
					tally.addSkipped()
					continue
				}
				tally.addCreated()
				if msg != nil {
					batch = append(batch, *msg)
				}
			}
		}

		if !dryRun && len(batch) > 0 {
			if err := r.deps.Publisher.SendBatch(ctx, batch); err != nil {
				return err
			}
		}

		if len(clients) < r.cfg.ClientPageSize {
			return nil
		}
		afterID = clients[len(clients)-1].ID
	}
}

// createDispatch inserts a pending dispatch and builds its queue message.
// Returns created=false on a dedup conflict. In dry-run mode the dispatch
// is counted but nothing is written; the returned message is nil.
func (r *BillingRunner) createDispatch(
	ctx context.Context,
	orgID string,
	client *types.Client,
	rule *types.BillingRule,
	today time.Time,
	reason types.DispatchReason,
	traceID string,
	dryRun bool,
) (*types.DispatchMessage, bool, error) {
	if dryRun {
		return nil, true, nil
	}

	record := &types.DispatchRecord{
		ID:             "disp_" + uuid.New().String(),
		OrganizationID: orgID,
		ClientID:       client.ID,
		RuleID:         rule.ID,
		TemplateID:     rule.MessageTemplateID,
		WindowKey:      r.windowKey(rule, today),
		Reason:         reason,
		Status:         types.DispatchPending,
	}

	created, err := r.deps.Dispatches.InsertPending(ctx, record)
	if err != nil {
		return nil, false, err
	}
	if !created {
		return nil, false, nil
	}

	return &types.DispatchMessage{
		DispatchID:     record.ID,
		OrganizationID: orgID,
		ClientID:       client.ID,
		RuleID:         rule.ID,
		TemplateID:     rule.MessageTemplateID,
		Reason:         reason,
		TraceID:        traceID,
		EnqueuedAt:     r.deps.Clock.Now(),
	}, true, nil
}

// windowKey derives the dedup key for a dispatch. With monthly dedup
// disabled every rule keys by calendar date, so a monthly-window rule
// sends once per day inside its window.
func (r *BillingRunner) windowKey(rule *types.BillingRule, today time.Time) string {
	if !r.cfg.MonthlyDedup {
		return today.UTC().Format("2006-01-02")
	}
	return billingrules.DedupWindowKey(rule, today)
}

// ApplyManualRule fires a manual rule on demand against every client its
// status and filter gates select. The dedup window is the calendar day, so
// repeated applications on the same day collapse to one send per client.
func (r *BillingRunner) ApplyManualRule(ctx context.Context, orgID, ruleID string) (*types.RunReport, error) {
	rule, err := r.deps.Rules.GetByID(ctx, orgID, ruleID)
	if err != nil {
		return nil, err
	}
	if rule.Type != types.RuleManual {
		return nil, types.NewAppError(
			types.ErrCodeRuleConfigInvalid,
			"only manual rules can be applied on demand",
			nil,
		)
	}

	runID := "run_" + uuid.New().String()
	today := r.deps.Clock.Now()
	matcher := billingrules.NewMatcher(nil)

	report := &types.RunReport{RunID: runID, Date: today}

	afterID := ""
	for {
		clients, err := r.deps.Clients.ListForEvaluation(ctx, orgID, afterID, r.cfg.ClientPageSize)
		if err != nil {
			return nil, err
		}
		if len(clients) == 0 {
			break
		}

		var batch []types.DispatchMessage
		for i := range clients {
			client := &clients[i]
			report.ClientsEvaluated++
			if !matcher.MatchesManual(client, rule, today) {
				continue
			}
			report.RulesMatched++

			msg, created, err := r.createDispatch(ctx, orgID, client, rule, today, types.DispatchReasonManual, runID, false)
			if err != nil {
				return nil, err
			}
			if !created {
				report.SkippedDedup++
				continue
			}
			report.DispatchesCreated++
			batch = append(batch, *msg)
		}

		if len(batch) > 0 {
			if err := r.deps.Publisher.SendBatch(ctx, batch); err != nil {
				return nil, err
			}
		}

		if len(clients) < r.cfg.ClientPageSize {
			break
		}
		afterID = clients[len(clients)-1].ID
	}

	r.deps.Logger.InfoContext(ctx, "manual rule applied",
		slog.String("run_id", runID),
		slog.String("organization_id", orgID),
		slog.String("rule_id", ruleID),
		slog.Int("clients_evaluated", report.ClientsEvaluated),
		slog.Int("dispatches_created", report.DispatchesCreated),
		slog.Int("skipped_dedup", report.SkippedDedup),
	)

	return report, nil
}
