// Package telegram is a small Bot API client covering what the converter
// needs: long polling, text and keyboard replies, message edits and
// deletes, document uploads, and file downloads.
//
// Transport adapts the client to the session package so the state machine
// never sees Bot API types. The bot token appears only in request URLs and
// is scrubbed from every returned error.
package telegram
