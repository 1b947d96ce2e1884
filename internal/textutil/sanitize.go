package textutil

import (
	"strings"
	"unicode"
)

// fileNameReplacer replaces filesystem-unsafe characters with safe alternatives.
var fileNameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
)

// SanitizeFileName makes a user-supplied file name safe to create on disk
// and to pass to external tools. Slashes, backslashes, colons and asterisks
// become dashes, other unsafe characters and control characters are removed,
// and leading dots or dashes are stripped so the result is neither hidden nor
// mistaken for a flag. The extension is kept. An empty result means the name
// was unusable.
func SanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = fileNameReplacer.Replace(name)
	return strings.TrimSpace(strings.TrimLeft(name, ".- "))
}
