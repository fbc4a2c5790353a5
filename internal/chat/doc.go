// Package chat is the real-time transport for conversations.
//
// A Hub fans envelopes out to every connection in a named room. Handler
// upgrades GET /ws/chat/{room} to a websocket, gives the connection its own
// session, and for each inbound frame publishes the user's line followed by
// the reply from its MessageHandler, labelled "Bot".
//
// Wire format, both directions:
//
//	{"message": "...", "username": "...", "timestamp": "..."}
//
// Clients omit timestamp. Publishing never blocks; a connection that falls
// more than 64 envelopes behind misses the excess.
package chat
