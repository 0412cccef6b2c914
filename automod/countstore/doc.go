// Automod component for per-chat message statistics: counters bucketed by total, day, and hour periods, plus approximate distinct-value counts.
//
// Includes an interface and implementations using redis and process-local memory.
package countstore
