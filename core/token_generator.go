package core

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

const tokenEntropyBytes = 32

// TokenGenerator produces the opaque, URL-safe string placed in invite links.
type TokenGenerator interface {
	Generate() (string, error)
}

type RandomTokenGenerator struct{}

func (RandomTokenGenerator) Generate() (string, error) {
	buf := make([]byte, tokenEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("core: generate invitation token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

var _ TokenGenerator = RandomTokenGenerator{}
