// Per-chat anti-spam moderation for group chats.
//
// This package (`github.com/antigcast/antigcast/automod`) re-exports the core types of the moderation pipeline. Each chat has an administrator-managed ruleset (an enabled flag plus blacklist and whitelist terms) kept in a durable store and cached in memory with a bounded freshness window. Every incoming message is normalized, checked against the chat's most recent message for exact duplicates, scanned for global spam signals (suspicious keywords, mentions, links, emoji floods), and evaluated against the ruleset to decide whether it should be deleted.
//
// The subpackages hold the pieces: `rulestore` (durable rulesets), `modcache` (read-through ruleset cache), `recency` (per-chat duplicate tracking), `engine` (signals, evaluation, classification), `countstore` (per-chat statistics), and `consumer` (the chat platform side, including admin commands). See `cmd/antigcast` for a daemon built on this package.
package automod
