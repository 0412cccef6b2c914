// Automod component which keeps a per-chat, time-bounded snapshot of moderation rulesets in front of a slower durable RuleStore.
//
// Reads of a fresh entry do no I/O. Concurrent misses for the same chat are coalesced in to a single store fetch. Mutations are written through to the store, and only on success is the cached entry dropped, so the next read for that chat observes the write.
//
// Store failures never reach readers: GetRuleSet falls back to the default (disabled) ruleset and does not cache the failure.
package modcache
