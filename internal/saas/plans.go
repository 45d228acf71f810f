// Package saas implements the panel's own subscription layer: plan tiers
// and their limits, the gate that blocks delinquent tenants, and the
// Stripe integration that keeps local billing state in sync.
package saas

import "revenda/internal/types"

// planRegistry defines what each tier allows. Zero means unlimited.
var planRegistry = map[types.PlanTier]types.PlanLimits{
	types.PlanFree: {
		MaxClients: 50,
		// Automatic rules are blocked outright on this tier, so no rule
		// count applies.
		MaxActiveRules:  0,
		AllowAutomation: false,
	},
	types.PlanStarter: {
		MaxClients:      300,
		MaxActiveRules:  5,
		AllowAutomation: true,
	},
	types.PlanPro: {
		MaxClients:      1500,
		MaxActiveRules:  20,
		AllowAutomation: true,
	},
	types.PlanBusiness: {
		MaxClients:      0,
		MaxActiveRules:  0,
		AllowAutomation: true,
	},
}

// LimitsFor returns the limits of a plan tier. Unknown tiers get the free
// tier's limits, which is the safe direction to fail in.
func LimitsFor(plan types.PlanTier) types.PlanLimits {
	if limits, ok := planRegistry[plan]; ok {
		return limits
	}
	return planRegistry[types.PlanFree]
}

// PriceToPlan maps Stripe price IDs to plan tiers. Populated from the
// Stripe dashboard's price objects; the test values double as defaults.
var PriceToPlan = map[string]types.PlanTier{
	"price_starter":  types.PlanStarter,
	"price_pro":      types.PlanPro,
	"price_business": types.PlanBusiness,
}

// PlanToPrice is the inverse of PriceToPlan, used when building checkout
// sessions.
var PlanToPrice = map[types.PlanTier]string{
	types.PlanStarter:  "price_starter",
	types.PlanPro:      "price_pro",
	types.PlanBusiness: "price_business",
}
