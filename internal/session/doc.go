// Package session drives one conversation through pair selection, a single
// upload, and the conversion of that upload.
//
// A Session moves SelectingPair -> AwaitingFile -> Terminal. The Store
// serializes events per conversation and forgets a session once it is
// Terminal, so each entry command allows exactly one conversion.
// HandleConversion is the single place a workspace is opened, and it releases
// that workspace on every path.
package session
