package common

import (
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// TokenPrefix marks job-store keys handed to clients.
const TokenPrefix = "pending-request:"

func NewULID() (string, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), ulid.DefaultEntropy())
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func NewJobToken() string {
	return TokenPrefix + uuid.NewString()
}

// ValidJobToken reports whether s looks like a token minted by NewJobToken.
func ValidJobToken(s string) bool {
	if len(s) <= len(TokenPrefix) || s[:len(TokenPrefix)] != TokenPrefix {
		return false
	}
	_, err := uuid.Parse(s[len(TokenPrefix):])
	return err == nil
}
