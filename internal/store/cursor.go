package store

import (
	"encoding/base64"

	"go.mongodb.org/mongo-driver/bson"

	"refill-api-server/internal/apperror"
)

type cursorToken struct {
	After       string `bson:"after"`
	Fingerprint string `bson:"fp"`
}

// EncodeCursor builds the opaque token that resumes a paged query after the
// document with id after.
func EncodeCursor(after, fingerprint string) (string, error) {
	raw, err := bson.Marshal(cursorToken{After: after, Fingerprint: fingerprint})
	if err != nil {
		return "", apperror.NewInternal(err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// DecodeCursor returns the id to resume after. An empty token starts from the
// beginning. Tokens minted for another query are rejected.
func DecodeCursor(token, fingerprint string) (string, error) {
	if token == "" {
		return "", nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", apperror.NewValidation("malformed continuation token")
	}
	var ct cursorToken
	if err := bson.Unmarshal(raw, &ct); err != nil || ct.After == "" {
		return "", apperror.NewValidation("malformed continuation token")
	}
	if ct.Fingerprint != fingerprint {
		return "", apperror.NewValidation("continuation token does not belong to this query")
	}
	return ct.After, nil
}
