package barter

import (
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/swapcircle/backend/internal/codes"
)

const maxCodeAttempts = 8

var errCodeGeneration = errors.New("barter: could not mint distinct confirmation codes")

// mintCodePair returns two distinct codes for owner and requester.
func mintCodePair(generator codes.Generator) (string, string, error) {
	ownerCode, err := generator.NewCode()
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", errCodeGeneration, err)
	}
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		requesterCode, err := generator.NewCode()
		if err != nil {
			return "", "", fmt.Errorf("%w: %w", errCodeGeneration, err)
		}
		if requesterCode != ownerCode {
			return ownerCode, requesterCode, nil
		}
	}
	return "", "", errCodeGeneration
}
