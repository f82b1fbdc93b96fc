// Auto-moderation engine for guild chat communities.
//
// This package (`github.com/wardenbot/warden/automod`) evaluates guild events (members joining, messages being posted) against each guild's configured rules: username patterns, message rate and spam limits, and blocked attachment types. Violations are enforced through a moderation gateway (warn, delete, timeout, kick, ban), and every enforcement attempt is recorded as an audit case.
//
// The engine itself lives in `automod/engine`; rule loading and caching in `automod/rulestore` and `automod/rulecache`; per-user sliding windows in `automod/activity`. See `cmd/warden` for a daemon built on this package.
package automod
