// Package main hosts the convertbot CLI entrypoint and command graph.
//
// The Cobra command tree starts the Telegram bot, runs one-off local
// conversions through the same pipeline, and inspects what the bot leaves on
// disk: staging workspaces, the attempt history and its configuration.
// Configuration resolution (including .env loading) happens once in the
// root pre-run so subcommands only deal with their own output.
package main
