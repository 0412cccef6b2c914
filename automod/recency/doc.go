// Automod component tracking the most recent message text per chat, used for consecutive-duplicate detection and burst counting.
//
// State is held in process memory only. Updates for a single chat are atomic with respect to each other; different chats never contend.
package recency
