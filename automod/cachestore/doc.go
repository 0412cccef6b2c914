// Automod component for caching small values (as strings, usually JSON) with a fixed TTL and purging.
//
// Includes an interface and implementations using redis and in-process memory.
//
// Used for data which is slow or rate-limited to fetch from the messaging platform, such as the administrator list of each chat.
package cachestore
