// Automod component for durable storage of per-chat moderation settings: the enabled flag, and the denylist and allowlist terms.
//
// Includes an interface and implementations using MongoDB, SQL (via gorm), redis, and in-process memory.
//
// Implementations do no caching; the modcache package sits in front of a RuleStore on the message path.
package rulestore
