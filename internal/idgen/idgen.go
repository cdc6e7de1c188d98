// Package idgen generates the unique identifiers the broker and transport
// need: per-module quit tokens, control/message channel ids, and stable
// publisher-identity tags.
package idgen

import (
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// QuitToken returns a short random string unique enough to serve as a
// broker module record's sentinel subscription (spec.md §3, §9: "a
// per-record unique quit token"). Grounded on the original source's
// quit_message_guid, which is a GUID.
func QuitToken() string {
	return "quit:" + uuid.NewString()
}

// New returns a fresh, globally unique identifier, used as the
// out-of-process message.id default when a configuration entry leaves it
// unset (spec.md §6).
func New() string {
	return uuid.NewString()
}

// IdentityTagLen is the width, in bytes, of an Identity's wire
// representation (String's hex encoding) as written onto a publish frame.
const IdentityTagLen = 16

// Identity is a stable, fixed-width publisher-identity tag. It replaces the
// raw-pointer topic prefix the original source writes onto its publish
// socket (spec.md §9: "Implement the tag as an index or a stable
// identifier... so that no pointer is ever written to a socket") with an
// 8-byte hash of the module's name, stable across process restarts as long
// as the name doesn't change.
type Identity [8]byte

// IdentityOf hashes a module name into its fixed-width wire identity.
func IdentityOf(moduleName string) Identity {
	h := xxhash.Sum64String(moduleName)
	var id Identity
	for i := 0; i < 8; i++ {
		id[i] = byte(h >> (8 * uint(i)))
	}
	return id
}

// String renders the identity as a lowercase hex string, useful in logs.
func (id Identity) String() string {
	const hexDigits = "0123456789abcdef"
	var b strings.Builder
	b.Grow(16)
	for _, c := range id {
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0x0f])
	}
	return b.String()
}
