// Package sessions implements the per-conversation Session type, its key
// scheme, and the Manager that owns in-memory sessions with atomic on-disk
// persistence.
//
// Session keys follow the flat scheme:
//
//	{channel}:{chat_id}           normal traffic
//	isolated:{uuid}               user-created isolated sessions
//	system:{origin_channel}:{origin_chat_id}   subagent replies routed home
package sessions

import "strings"

const (
	ChannelSystem = "system"
	isolatedTag   = "isolated"
)

// BuildSessionKey builds the canonical session key for a channel conversation.
func BuildSessionKey(channel, chatID string) string {
	return channel + ":" + chatID
}

// BuildSystemSessionKey builds the session key used for the system pseudo-channel,
// whose chat_id encodes the true destination as origin_channel:origin_chat_id.
func BuildSystemSessionKey(originChannel, originChatID string) string {
	return BuildSessionKey(ChannelSystem, originChannel+":"+originChatID)
}

// BuildIsolatedSessionKey builds the key for a user-created isolated session.
func BuildIsolatedSessionKey(uuid string) string {
	return isolatedTag + ":" + uuid
}

// IsIsolatedSessionKey reports whether key names an isolated session.
func IsIsolatedSessionKey(key string) bool {
	return strings.HasPrefix(key, isolatedTag+":")
}

// IsSystemSessionKey reports whether key names the system pseudo-channel.
func IsSystemSessionKey(key string) bool {
	return strings.HasPrefix(key, ChannelSystem+":")
}

// ParseSessionKey splits a key into channel and chat_id. For a normal key
// this is a single split on the first colon. For the system channel, chat_id
// itself contains a colon-separated origin_channel:origin_chat_id pair, which
// ParseSystemChatID further decomposes.
func ParseSessionKey(key string) (channel, chatID string) {
	idx := strings.IndexByte(key, ':')
	if idx < 0 {
		return key, ""
	}
	return key[:idx], key[idx+1:]
}

// ParseSystemChatID splits a system-channel chat_id of the form
// "origin_channel:origin_chat_id" into its two parts.
func ParseSystemChatID(chatID string) (originChannel, originChatID string, ok bool) {
	idx := strings.IndexByte(chatID, ':')
	if idx < 0 {
		return "", "", false
	}
	return chatID[:idx], chatID[idx+1:], true
}
