// Package ffprobe wraps the ffprobe CLI to inspect converted files.
//
// The transcoder uses it to confirm an output carries at least one decodable
// stream before the file is delivered.
package ffprobe
