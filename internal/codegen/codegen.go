// Package codegen generates the short room codes players type in to join a
// room, generalizing the join-code generator the game server this was
// adapted from used for its six-character codes.
package codegen

import (
	"context"
	"crypto/rand"

	"promptguessr/internal/gameerr"
)

const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const maxAttempts = 10

// Generate returns a random code of length drawn from alphabet.
func Generate(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, length)
	for i, b := range buf {
		out[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(out), nil
}

// GenerateUnique retries Generate against isCodeTaken up to maxAttempts
// times before giving up with CodeExhaustion.
func GenerateUnique(ctx context.Context, length int, isCodeTaken func(context.Context, string) (bool, error)) (string, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		code, err := Generate(length)
		if err != nil {
			return "", gameerr.Wrap("createRoom", gameerr.KindCodeExhaustion, err)
		}
		taken, err := isCodeTaken(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", gameerr.New("createRoom", gameerr.KindCodeExhaustion, "exhausted room code generation attempts")
}
