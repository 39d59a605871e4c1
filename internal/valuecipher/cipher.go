// Package valuecipher converts monetary values to and from the opaque tokens
// stored alongside positions.
package valuecipher

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/bobmcallan/rollup/internal/common"
	"github.com/bobmcallan/rollup/internal/interfaces"
)

// New returns the cipher selected by the [security] config section.
func New(cfg common.SecurityConfig) (interfaces.ValueCipher, error) {
	switch strings.ToLower(cfg.ValueCipher) {
	case "", "plain":
		return Plain{}, nil
	case "secretbox":
		key, err := base64.StdEncoding.DecodeString(cfg.ValueKey)
		if err != nil {
			return nil, fmt.Errorf("decode value key: %w", err)
		}
		return NewSecretbox(key)
	default:
		return nil, fmt.Errorf("unknown value cipher %q", cfg.ValueCipher)
	}
}
