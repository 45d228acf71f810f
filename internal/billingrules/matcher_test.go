package billingrules

import (
	"testing"
	"time"

	"revenda/internal/types"
)

// Test fixtures. The client expires on 2024-06-10 unless a test overrides it.

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func datePtr(y int, m time.Month, d int) *time.Time {
	t := date(y, m, d)
	return &t
}

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func activeClient() *types.Client {
	return &types.Client{
		ID:        "cl_1",
		Status:    types.ClientActive,
		ExpiresAt: datePtr(2024, time.June, 10),
		PlanID:    strPtr("plan_basic"),
	}
}

func daysBeforeRule(days int) *types.BillingRule {
	return &types.BillingRule{
		ID:                "rule_days",
		Name:              "renewal reminder",
		ClientStatus:      types.RuleStatusTodos,
		Type:              types.RuleAutomatic,
		AutomaticType:     types.TriggerDaysBeforeExpiration,
		Days:              intPtr(days),
		MessageTemplateID: "tpl_1",
		Enabled:           true,
	}
}

func monthlyRule(start, end int) *types.BillingRule {
	return &types.BillingRule{
		ID:                "rule_monthly",
		Name:              "monthly charge notice",
		ClientStatus:      types.RuleStatusTodos,
		Type:              types.RuleAutomatic,
		AutomaticType:     types.TriggerMonthlyDayRange,
		StartDay:          intPtr(start),
		EndDay:            intPtr(end),
		MessageTemplateID: "tpl_2",
		Enabled:           true,
	}
}

func TestMatches_ManualRulesNeverFire(t *testing.T) {
	m := NewMatcher(nil)
	rule := daysBeforeRule(0)
	rule.Type = types.RuleManual

	// Even on the exact trigger day, a manual rule must not auto-fire.
	ok, err := m.Matches(activeClient(), rule, date(2024, time.June, 10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("manual rule must never match automatically")
	}
}

func TestMatches_DisabledRulesNeverFire(t *testing.T) {
	m := NewMatcher(nil)
	rule := daysBeforeRule(0)
	rule.Enabled = false

	ok, err := m.Matches(activeClient(), rule, date(2024, time.June, 10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("disabled rule must not match")
	}
}

func TestMatches_DaysBeforeExpiration(t *testing.T) {
	m := NewMatcher(nil)

	cases := []struct {
		name  string
		days  int
		today time.Time
		want  bool
	}{
		{"fires on exact day", 3, date(2024, time.June, 7), true},
		{"one day early", 3, date(2024, time.June, 6), false},
		{"one day late", 3, date(2024, time.June, 8), false},
		{"zero days fires on expiration date", 0, date(2024, time.June, 10), true},
		{"zero days does not fire the day before", 0, date(2024, time.June, 9), false},
		{"one day before expiration", 1, date(2024, time.June, 9), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, err := m.Matches(activeClient(), daysBeforeRule(tc.days), tc.today)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ok != tc.want {
				t.Errorf("expected %v, got %v", tc.want, ok)
			}
		})
	}
}

func TestMatches_DaysBefore_NoExpirationDateFailsQuietly(t *testing.T) {
	m := NewMatcher(nil)
	client := activeClient()
	client.ExpiresAt = nil // lifetime plan

	ok, err := m.Matches(client, daysBeforeRule(3), date(2024, time.June, 7))
	if err != nil {
		t.Fatalf("missing expires_at must not be an error: %v", err)
	}
	if ok {
		t.Error("rule must not match without an expiration date")
	}
}

func TestMatches_MonthlyDayRange(t *testing.T) {
	m := NewMatcher(nil)
	rule := monthlyRule(5, 10)

	cases := []struct {
		day  int
		want bool
	}{
		{4, false},
		{5, true},
		{7, true},
		{10, true},
		{11, false},
	}

	for _, tc := range cases {
		today := date(2024, time.June, tc.day)
		ok, err := m.Matches(activeClient(), rule, today)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok != tc.want {
			t.Errorf("day %d: expected %v, got %v", tc.day, tc.want, ok)
		}
	}
}

func TestMatches_MonthlyDayRange_IndependentOfExpiration(t *testing.T) {
	m := NewMatcher(nil)
	rule := monthlyRule(5, 10)

	// A client without any expiration date still matches inside the window.
	client := activeClient()
	client.ExpiresAt = nil

	ok, err := m.Matches(client, rule, date(2024, time.June, 7))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("monthly window must not depend on expires_at")
	}
}

func TestMatches_StatusGates(t *testing.T) {
	m := NewMatcher(nil)

	newRule := func(status types.RuleClientStatus) *types.BillingRule {
		r := daysBeforeRule(0)
		r.ClientStatus = status
		return r
	}
	// A wide monthly window keeps the automatic gate out of the way when a
	// case needs the status gate isolated.
	wideRule := func(status types.RuleClientStatus) *types.BillingRule {
		r := monthlyRule(1, 31)
		r.ClientStatus = status
		return r
	}

	expired := &types.Client{
		ID:        "cl_expired",
		Status:    types.ClientInactive,
		ExpiresAt: datePtr(2024, time.June, 10),
	}

	t.Run("TODOS always passes", func(t *testing.T) {
		ok, err := m.Matches(expired, wideRule(types.RuleStatusTodos), date(2024, time.June, 15))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ok {
			t.Error("TODOS must pass for any client")
		}
	})

	t.Run("ATIVO requires active status", func(t *testing.T) {
		ok, _ := m.Matches(expired, wideRule(types.RuleStatusAtivo), date(2024, time.June, 15))
		if ok {
			t.Error("ATIVO must not match an inactive client")
		}
		ok, _ = m.Matches(activeClient(), wideRule(types.RuleStatusAtivo), date(2024, time.June, 15))
		if !ok {
			t.Error("ATIVO must match an active client")
		}
	})

	t.Run("VENCE_HOJE matches active client expiring today", func(t *testing.T) {
		ok, err := m.Matches(activeClient(), newRule(types.RuleStatusVenceHoje), date(2024, time.June, 10))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ok {
			t.Error("expected VENCE_HOJE match on expiration day")
		}
	})

	t.Run("VENCE_HOJE does not match the day before", func(t *testing.T) {
		ok, _ := m.Matches(activeClient(), newRule(types.RuleStatusVenceHoje), date(2024, time.June, 9))
		if ok {
			t.Error("VENCE_HOJE must not match before the expiration day")
		}
	})

	t.Run("VENCIDO matches inactive client expired yesterday", func(t *testing.T) {
		r := wideRule(types.RuleStatusVencido)
		ok, err := m.Matches(expired, r, date(2024, time.June, 11))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ok {
			t.Error("expected VENCIDO match one day after expiration")
		}
	})

	t.Run("VENCIDO does not match on the expiration day itself", func(t *testing.T) {
		ok, _ := m.Matches(expired, wideRule(types.RuleStatusVencido), date(2024, time.June, 10))
		if ok {
			t.Error("VENCIDO requires the expiration to be strictly in the past")
		}
	})

	t.Run("VENCIDO requires inactive status", func(t *testing.T) {
		ok, _ := m.Matches(activeClient(), wideRule(types.RuleStatusVencido), date(2024, time.June, 11))
		if ok {
			t.Error("VENCIDO must not match an active client")
		}
	})
}

func TestMatches_FilterGates(t *testing.T) {
	m := NewMatcher(nil)
	today := date(2024, time.June, 7)

	rule := daysBeforeRule(3)
	rule.PlanIDs = []string{"P1", "P2"}

	t.Run("client plan in set passes", func(t *testing.T) {
		client := activeClient()
		client.PlanID = strPtr("P1")
		ok, _ := m.Matches(client, rule, today)
		if !ok {
			t.Error("expected match for plan in filter set")
		}
	})

	t.Run("client plan outside set fails", func(t *testing.T) {
		client := activeClient()
		client.PlanID = strPtr("P3")
		ok, _ := m.Matches(client, rule, today)
		if ok {
			t.Error("expected no match for plan outside filter set")
		}
	})

	t.Run("absent client plan fails a configured gate", func(t *testing.T) {
		client := activeClient()
		client.PlanID = nil
		ok, _ := m.Matches(client, rule, today)
		if ok {
			t.Error("expected no match when the client has no plan")
		}
	})

	t.Run("empty filter set is unrestricted", func(t *testing.T) {
		client := activeClient()
		client.PlanID = strPtr("anything")
		ok, _ := m.Matches(client, daysBeforeRule(3), today)
		if !ok {
			t.Error("expected match when no filter is configured")
		}
	})

	t.Run("all dimensions are gated", func(t *testing.T) {
		client := activeClient()
		client.ServerID = strPtr("srv_1")
		client.DeviceID = strPtr("dev_1")

		r := daysBeforeRule(3)
		r.ServerIDs = []string{"srv_1"}
		r.DeviceIDs = []string{"dev_2"} // mismatched device

		ok, _ := m.Matches(client, r, today)
		if ok {
			t.Error("one failing dimension must fail the whole match")
		}
	})
}

func TestMatches_IsPure(t *testing.T) {
	m := NewMatcher(nil)
	client := activeClient()
	rule := daysBeforeRule(3)
	today := date(2024, time.June, 7)

	first, err1 := m.Matches(client, rule, today)
	second, err2 := m.Matches(client, rule, today)
	if err1 != nil || err2 != nil {
		t.Fatalf("unexpected errors: %v %v", err1, err2)
	}
	if first != second {
		t.Error("identical inputs must yield identical results")
	}
}

func TestMatches_MisconfiguredAutomaticRule(t *testing.T) {
	m := NewMatcher(nil)
	rule := daysBeforeRule(3)
	rule.Days = nil

	ok, err := m.Matches(activeClient(), rule, date(2024, time.June, 7))
	if ok {
		t.Error("misconfigured rule must not match")
	}
	appErr, isApp := err.(*types.AppError)
	if !isApp {
		t.Fatalf("expected *types.AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeRuleConfigInvalid {
		t.Errorf("expected %s, got %s", types.ErrCodeRuleConfigInvalid, appErr.Code)
	}
}

func TestMatches_VenceHojeRequiresDerivedCombination(t *testing.T) {
	m := NewMatcher(nil)
	today := date(2024, time.June, 10)

	requireConfigError := func(t *testing.T, ok bool, err error) {
		t.Helper()
		if ok {
			t.Error("inconsistent VENCE_HOJE rule must not match")
		}
		appErr, isApp := err.(*types.AppError)
		if !isApp {
			t.Fatalf("expected *types.AppError, got %T", err)
		}
		if appErr.Code != types.ErrCodeRuleConfigInvalid {
			t.Errorf("expected %s, got %s", types.ErrCodeRuleConfigInvalid, appErr.Code)
		}
	}

	t.Run("monthly trigger is diagnosed", func(t *testing.T) {
		rule := monthlyRule(1, 31)
		rule.ClientStatus = types.RuleStatusVenceHoje

		ok, err := m.Matches(activeClient(), rule, today)
		requireConfigError(t, ok, err)
	})

	t.Run("nonzero days is diagnosed, not silently dead", func(t *testing.T) {
		rule := daysBeforeRule(5)
		rule.ClientStatus = types.RuleStatusVenceHoje

		ok, err := m.Matches(activeClient(), rule, today)
		requireConfigError(t, ok, err)
	})

	t.Run("derived combination fires on the expiration day", func(t *testing.T) {
		rule := daysBeforeRule(0)
		rule.ClientStatus = types.RuleStatusVenceHoje

		ok, err := m.Matches(activeClient(), rule, today)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !ok {
			t.Error("expected match on the expiration day")
		}
	})
}

func TestMatchAll_ReportsVenceHojeMisconfiguration(t *testing.T) {
	m := NewMatcher(nil)

	bad := monthlyRule(1, 31)
	bad.ID = "rule_bad_vh"
	bad.ClientStatus = types.RuleStatusVenceHoje

	result := m.MatchAll(activeClient(), []types.BillingRule{*bad}, date(2024, time.June, 10))
	if len(result.Matched) != 0 {
		t.Fatalf("expected no matches, got %d", len(result.Matched))
	}
	if len(result.Diagnostics) != 1 || result.Diagnostics[0].RuleID != "rule_bad_vh" {
		t.Fatalf("expected one diagnostic for rule_bad_vh, got %+v", result.Diagnostics)
	}
}

func TestMatchAll_SkipsMalformedRuleAndKeepsOrder(t *testing.T) {
	m := NewMatcher(nil)
	today := date(2024, time.June, 7)

	broken := daysBeforeRule(3)
	broken.ID = "rule_broken"
	broken.Days = nil

	first := daysBeforeRule(3)
	first.ID = "rule_first"

	second := monthlyRule(1, 31)
	second.ID = "rule_second"

	rules := []types.BillingRule{*first, *broken, *second}
	result := m.MatchAll(activeClient(), rules, today)

	if len(result.Matched) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(result.Matched))
	}
	if result.Matched[0].ID != "rule_first" || result.Matched[1].ID != "rule_second" {
		t.Errorf("catalog order not preserved: %s, %s",
			result.Matched[0].ID, result.Matched[1].ID)
	}

	if len(result.Diagnostics) != 1 {
		t.Fatalf("expected 1 diagnostic, got %d", len(result.Diagnostics))
	}
	diag := result.Diagnostics[0]
	if diag.RuleID != "rule_broken" {
		t.Errorf("expected diagnostic for rule_broken, got %s", diag.RuleID)
	}
	if diag.Err.Code != types.ErrCodeRuleConfigInvalid {
		t.Errorf("expected rule_configuration_invalid, got %s", diag.Err.Code)
	}
}

func TestMatchAll_EndToEndScenario(t *testing.T) {
	// Client {ACTIVE, expires 2024-07-01, plan "basic"} against a small
	// catalog: a manual rule never fires; a TODOS days=3 rule fires on
	// 06-28 and not on 06-27.
	m := NewMatcher(nil)
	client := &types.Client{
		ID:        "cl_e2e",
		Status:    types.ClientActive,
		ExpiresAt: datePtr(2024, time.July, 1),
		PlanID:    strPtr("basic"),
	}

	manual := &types.BillingRule{
		ID:                "rule_manual",
		Name:              "operator nudge",
		ClientStatus:      types.RuleStatusAtivo,
		Type:              types.RuleManual,
		MessageTemplateID: "tpl_m",
		Enabled:           true,
	}
	auto := daysBeforeRule(3)
	auto.ID = "rule_auto"

	rules := []types.BillingRule{*manual, *auto}

	matched := m.MatchAll(client, rules, date(2024, time.June, 28))
	if len(matched.Matched) != 1 || matched.Matched[0].ID != "rule_auto" {
		t.Fatalf("expected only rule_auto on 06-28, got %+v", matched.Matched)
	}

	unmatched := m.MatchAll(client, rules, date(2024, time.June, 27))
	if len(unmatched.Matched) != 0 {
		t.Fatalf("expected no matches on 06-27, got %+v", unmatched.Matched)
	}
}

func TestDedupWindowKey(t *testing.T) {
	daysRule := daysBeforeRule(3)
	monthly := monthlyRule(5, 10)

	t.Run("days-before keys by calendar date", func(t *testing.T) {
		k1 := DedupWindowKey(daysRule, date(2024, time.June, 7))
		k2 := DedupWindowKey(daysRule, date(2024, time.June, 8))
		if k1 != "2024-06-07" {
			t.Errorf("unexpected key %q", k1)
		}
		if k1 == k2 {
			t.Error("different days must produce different keys")
		}
	})

	t.Run("monthly keys are stable within a window", func(t *testing.T) {
		k5 := DedupWindowKey(monthly, date(2024, time.June, 5))
		k10 := DedupWindowKey(monthly, date(2024, time.June, 10))
		if k5 != k10 {
			t.Errorf("window days must share a key: %q vs %q", k5, k10)
		}
		if k5 != "2024-06:5-10" {
			t.Errorf("unexpected key %q", k5)
		}
	})

	t.Run("monthly keys differ across months", func(t *testing.T) {
		jun := DedupWindowKey(monthly, date(2024, time.June, 7))
		jul := DedupWindowKey(monthly, date(2024, time.July, 7))
		if jun == jul {
			t.Error("same window in different months must produce different keys")
		}
	})
}
