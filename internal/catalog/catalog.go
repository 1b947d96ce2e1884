// Package catalog holds the closed table of conversion pairs the bot can offer.
//
// Every pair is validated when the package loads; configured subsets are
// checked when a Catalog is built, so an unknown key fails at startup rather
// than in the middle of a conversation.
package catalog

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"convertbot/internal/services"
)

// Key names a conversion pair.
type Key string

const (
	JPGToPNG  Key = "jpg_to_png"
	PNGToJPG  Key = "png_to_jpg"
	JPEGToPNG Key = "jpeg_to_png"
	PNGToJPEG Key = "png_to_jpeg"
	WebMToMP4 Key = "webm_to_mp4"
	MP4ToWebM Key = "mp4_to_webm"
)

// ErrUnknownPair reports a key that is not in the catalog.
var ErrUnknownPair = fmt.Errorf("%w: unknown conversion pair", services.ErrNotFound)

// Pair is an ordered source/target extension pair. Extensions include the dot.
type Pair struct {
	Key       Key
	SourceExt string
	TargetExt string
}

// Label renders the key the way the selection keyboard shows it.
func (p Pair) Label() string {
	return strings.ReplaceAll(string(p.Key), "_to_", " -> ")
}

func (p Pair) String() string {
	return string(p.Key)
}

var extensionPattern = regexp.MustCompile(`^\.[a-z0-9]+$`)

// builtin lists every pair in display order.
var builtin = []Pair{
	{Key: JPGToPNG, SourceExt: ".jpg", TargetExt: ".png"},
	{Key: PNGToJPG, SourceExt: ".png", TargetExt: ".jpg"},
	{Key: JPEGToPNG, SourceExt: ".jpeg", TargetExt: ".png"},
	{Key: PNGToJPEG, SourceExt: ".png", TargetExt: ".jpeg"},
	{Key: WebMToMP4, SourceExt: ".webm", TargetExt: ".mp4"},
	{Key: MP4ToWebM, SourceExt: ".mp4", TargetExt: ".webm"},
}

func init() {
	for _, pair := range builtin {
		if err := Validate(pair); err != nil {
			panic(fmt.Sprintf("catalog: invalid builtin pair %s: %v", pair.Key, err))
		}
	}
}

// Validate checks the pair invariant: both extensions present, distinct,
// and a single dotted token without path separators.
func Validate(p Pair) error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Key, validation.Required),
		validation.Field(&p.SourceExt,
			validation.Required,
			validation.Match(extensionPattern).Error("must be a single lower-case .token"),
			validation.By(noSeparator),
		),
		validation.Field(&p.TargetExt,
			validation.Required,
			validation.Match(extensionPattern).Error("must be a single lower-case .token"),
			validation.By(noSeparator),
			validation.NotIn(p.SourceExt).Error("must differ from the source extension"),
		),
	)
}

func noSeparator(value any) error {
	s, _ := value.(string)
	if strings.ContainsRune(s, filepath.Separator) || strings.ContainsRune(s, '/') {
		return errors.New("must not contain a path separator")
	}
	return nil
}

// Catalog is the enabled, immutable view of the builtin table. It is safe
// for concurrent use.
type Catalog struct {
	pairs []Pair
	byKey map[Key]Pair
}

// New builds a catalog exposing only enabledKeys, kept in builtin display
// order. Unknown keys fail with ErrUnknownPair.
func New(enabledKeys []string) (*Catalog, error) {
	enabled := make(map[Key]struct{}, len(enabledKeys))
	for _, raw := range enabledKeys {
		key := Key(strings.ToLower(strings.TrimSpace(raw)))
		if _, ok := lookupBuiltin(key); !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownPair, raw)
		}
		enabled[key] = struct{}{}
	}
	c := &Catalog{byKey: make(map[Key]Pair, len(enabled))}
	for _, pair := range builtin {
		if _, ok := enabled[pair.Key]; !ok {
			continue
		}
		c.pairs = append(c.pairs, pair)
		c.byKey[pair.Key] = pair
	}
	return c, nil
}

// All returns the enabled pairs in stable display order.
func (c *Catalog) All() []Pair {
	if c == nil {
		return nil
	}
	out := make([]Pair, len(c.pairs))
	copy(out, c.pairs)
	return out
}

// Lookup resolves an enabled key. Builtin pairs that are disabled are
// reported as unknown.
func (c *Catalog) Lookup(key string) (Pair, error) {
	if c != nil {
		if pair, ok := c.byKey[Key(key)]; ok {
			return pair, nil
		}
	}
	return Pair{}, fmt.Errorf("%w: %q", ErrUnknownPair, key)
}

// Enabled reports whether key is offered by this catalog.
func (c *Catalog) Enabled(key Key) bool {
	if c == nil {
		return false
	}
	_, ok := c.byKey[key]
	return ok
}

// Builtin returns every known pair, enabled or not.
func Builtin() []Pair {
	out := make([]Pair, len(builtin))
	copy(out, builtin)
	return out
}

func lookupBuiltin(key Key) (Pair, bool) {
	for _, pair := range builtin {
		if pair.Key == key {
			return pair, true
		}
	}
	return Pair{}, false
}
