package routing

// DefaultCapabilityMap seeds the routing config's categories on first
// boot. Grounded on the original system's CAPABILITY_MAP table
// (orchestrator/capability_map.py): each capability names the tier it
// normally requires and its scheduling priority. It covers the
// capabilities the delegation manager's classification prompt lists
// (coding, reasoning, analysis, verification, deep_research, finance,
// multilingual, math, fast_response, search) plus routing,
// classification and extraction — not a generic "content operation"
// taxonomy.
func DefaultCapabilityMap() map[string]CategoryRouting {
	return map[string]CategoryRouting{
		"coding":         {Tier: TierHeavy, Priority: PriorityHigh},
		"reasoning":      {Tier: TierHeavy, Priority: PriorityHigh},
		"analysis":       {Tier: TierHeavy, Priority: PriorityMedium},
		"verification":   {Tier: TierUltra, Priority: PriorityHigh},
		"deep_research":  {Tier: TierUltra, Priority: PriorityHigh},
		"finance":        {Tier: TierStandard, Priority: PriorityMedium},
		"multilingual":   {Tier: TierStandard, Priority: PriorityMedium},
		"math":           {Tier: TierStandard, Priority: PriorityMedium},
		"fast_response":  {Tier: TierStandard, Priority: PriorityLow},
		"routing":        {Tier: TierStandard, Priority: PriorityLow},
		"classification": {Tier: TierStandard, Priority: PriorityLow},
		"extraction":     {Tier: TierStandard, Priority: PriorityLow},
		"search":         {Tier: TierExternal, Priority: PriorityMedium},
	}
}

// RequiredTier resolves the single required inference tier for a set of
// capabilities, mirroring get_required_tier's tie-break rule exactly:
// start from TierStandard, and only move to a capability's tier when its
// priority rank is strictly better (lower) than the current best. A
// capability absent from the map is treated as TierStandard (its rank
// never improves on the starting point). This means a sole "external"
// capability like search never beats the TierStandard starting rank,
// which is why it resolves to standard rather than to external.
func RequiredTier(capabilityMap map[string]CategoryRouting, capabilities []string) Tier {
	best := TierStandard
	bestRank := best.Priority()

	for _, cap := range capabilities {
		tier := TierStandard
		if entry, ok := capabilityMap[cap]; ok {
			tier = entry.Tier
		}
		if rank := tier.Priority(); rank < bestRank {
			best = tier
			bestRank = rank
		}
	}
	return best
}
