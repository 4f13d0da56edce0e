// Package pow issues and verifies the proof-of-work challenge exchanged
// during the relay handshake. The puzzle weeds out connections that are not
// genuine game clients; each connection gets exactly one challenge per
// handshake attempt.
package pow

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"
)

// Challenge captures one issued puzzle. ResultInt is a timestamp-scoped
// nonce: a response quoting a different nonce is rejected outright, so an
// old answer cannot be replayed against a new challenge.
type Challenge struct {
	ResultInt int32
	Mode      byte

	InitInt1 int32
	InitInt2 int32

	Outcome       string
	FixedInitial  string
	Off           int32
	MaxIterations int32
}

const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

func randomLetters(rng *rand.Rand, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = letters[rng.Intn(len(letters))]
	}
	return string(b)
}

// digestCut is the answer derivation shared by the digest and puzzle modes:
// sha256 of the input rendered as an unsigned hex integer (leading zeros
// stripped), uppercased, cut to 14 characters.
func digestCut(input string) string {
	sum := sha256.Sum256([]byte(input))
	s := strings.ToUpper(strings.TrimLeft(hex.EncodeToString(sum[:]), "0"))
	if len(s) > 14 {
		s = s[:14]
	}
	return s
}

// Issue picks one of the challenge modes pseudo-randomly and precomputes the
// expected answer server-side. Mode 2 is retired and remapped to 5.
func Issue() *Challenge {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	c := &Challenge{ResultInt: int32(time.Now().Unix())}

	mode := rng.Intn(6)
	if mode == 2 {
		mode = 5
	}
	c.Mode = byte(mode)

	if mode == 0 || (mode >= 2 && mode <= 4) || mode == 6 {
		c.InitInt1 = rng.Int31()
	}
	if mode >= 1 && mode <= 4 {
		c.InitInt2 = rng.Int31()
	}

	switch {
	case mode == 3 || mode == 4:
		c.Outcome = digestCut(fmt.Sprintf("%d|%d", c.InitInt1, c.InitInt2))
	case mode == 5 || mode == 6:
		c.FixedInitial = randomLetters(rng, 4)
		if mode == 6 {
			c.FixedInitial = fmt.Sprintf("%s%d", c.FixedInitial, c.InitInt1)
		}
		c.Off = int32(rng.Intn(10))
		c.MaxIterations = int32(rng.Intn(10000000))
		c.Outcome = digestCut(fmt.Sprintf("%s%d", c.FixedInitial, c.Off))
	}

	return c
}

// Verify checks a client response against the issued challenge. It fails
// closed: a nonce or mode mismatch is false, and the expected answer is
// never re-derived from anything the client sent.
func (c *Challenge) Verify(resultInt int32, mode int32, answer string) bool {
	if c.ResultInt != resultInt || int32(c.Mode) != mode {
		return false
	}

	switch c.Mode {
	case 0:
		return strconv.FormatInt(int64(c.InitInt1), 10) == answer
	case 1:
		return strconv.FormatInt(int64(c.InitInt2), 10) == answer
	case 3, 4:
		return c.Outcome == answer
	case 5, 6:
		got, err := strconv.Atoi(answer)
		return err == nil && int32(got) == c.Off
	}
	return false
}

// ExpectedAnswer derives the answer a well-behaved client would submit.
// Exposed for the loopback client and the handshake tests.
func (c *Challenge) ExpectedAnswer() string {
	switch c.Mode {
	case 0:
		return strconv.FormatInt(int64(c.InitInt1), 10)
	case 1:
		return strconv.FormatInt(int64(c.InitInt2), 10)
	case 3, 4:
		return c.Outcome
	case 5, 6:
		return strconv.FormatInt(int64(c.Off), 10)
	}
	return ""
}

// Solve performs the client-side search for the puzzle modes: find the
// offset whose digest matches the published outcome. Returns the answer for
// any mode.
func (c *Challenge) Solve() string {
	if c.Mode != 5 && c.Mode != 6 {
		return c.ExpectedAnswer()
	}
	for off := int32(0); off <= c.MaxIterations; off++ {
		if digestCut(fmt.Sprintf("%s%d", c.FixedInitial, off)) == c.Outcome {
			return strconv.FormatInt(int64(off), 10)
		}
	}
	return ""
}
