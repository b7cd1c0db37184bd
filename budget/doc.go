/*
Package budget implements the token budget engine: token estimation, memory
selection under a token ceiling, adaptation of tracked memories back under
budget, declarative budget rules, and token-aware prompt construction.

The engine is synchronous and performs no I/O. All degradations (unknown
component, oversized candidate, unreachable adaptation target) surface as
data in return values, never as errors, so callers can always assemble some
usable prompt.

# Core types

  - Estimator — approximates token counts for text and memory records.
  - PrioritySelector / RelevanceSelector — greedy budget-bounded selection.
  - Adapter — reduce / prioritize-tier / summarize strategies, chosen from
    configuration at load time.
  - RulesManager — derives concrete (component, tier) budgets from config.
  - Constructor — assembles a bounded prompt from named memory sections.
  - Manager — composition root tracking cumulative memory token usage.
*/
package budget
