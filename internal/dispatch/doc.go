// Package dispatch routes Telegram updates to one worker goroutine per chat.
//
// Updates for a chat are handled in arrival order; different chats run in
// parallel. Workers exit after an idle period and are recreated on demand.
package dispatch
