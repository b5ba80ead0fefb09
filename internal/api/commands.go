package api

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// decodeHexCommand parses a hex string like "FD FC FB FA ..." (spaces and
// case insensitive) into raw command bytes.
func decodeHexCommand(s string) ([]byte, error) {
	cleaned := strings.NewReplacer(" ", "", "\t", "", ":", "").Replace(strings.TrimSpace(s))
	if cleaned == "" {
		return nil, fmt.Errorf("empty command")
	}
	raw, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("not valid hex: %w", err)
	}
	return raw, nil
}
