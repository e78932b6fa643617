// internal/room/code.go
package room

import (
	"crypto/rand"
)

// codeAlphabet excludes visually ambiguous glyphs (0/O, 1/I) so codes stay
// safe to read aloud and retype.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	codeLength = 4
	// codeCollisionLimit is how many collisions we tolerate at the default
	// length before escalating to 5 characters. The birthday bound on a
	// 32^4 space makes repeated collisions a signal that the live-room
	// count has grown past what 4 characters comfortably address.
	codeCollisionLimit = 5
)

// randomCode returns a code of n characters drawn from codeAlphabet with
// crypto/rand. Modulo bias is acceptable here: 256 % 32 == 0, so there is
// none for this alphabet size.
func randomCode(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms; if it does the
		// process has bigger problems than room codes.
		panic(err)
	}
	for i := range buf {
		buf[i] = codeAlphabet[int(buf[i])%len(codeAlphabet)]
	}
	return string(buf)
}

// newRoomCode generates a code not currently in use according to taken.
// There is no reservation step: the caller must invoke this while holding
// whatever lock guards the live room set, and retry if it loses a race.
func newRoomCode(taken func(string) bool) string {
	for i := 0; i < codeCollisionLimit; i++ {
		if code := randomCode(codeLength); !taken(code) {
			return code
		}
	}
	for {
		if code := randomCode(codeLength + 1); !taken(code) {
			return code
		}
	}
}
