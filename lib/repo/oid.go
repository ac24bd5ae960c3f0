package repo

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// OID is a lowercase hex object id. Both SHA-1 (40) and SHA-256 (64) ids are accepted.
type OID string

const ZeroOID = OID("0000000000000000000000000000000000000000")

const DefaultAbbrev = 7

func ParseOID(s string) (OID, error) {
	s = strings.ToLower(strings.TrimSpace(s))

	if len(s) != 40 && len(s) != 64 {
		return "", fmt.Errorf("invalid object id %q: expected 40 or 64 hex digits", s)
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", fmt.Errorf("invalid object id %q: %w", s, err)
	}

	return OID(s), nil
}

func MustParseOID(s string) OID {
	id, err := ParseOID(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (o OID) IsZero() bool {
	return strings.Trim(string(o), "0") == ""
}

func (o OID) String() string {
	return string(o)
}

func (o OID) Short(n int) string {
	if n <= 0 || n >= len(o) {
		return string(o)
	}
	return string(o[:n])
}

// AbbrevLength returns the shortest prefix length, never below min, that keeps all ids distinct.
func AbbrevLength(ids []OID, min int) int {
	sorted := make([]string, 0, len(ids))
	for _, id := range ids {
		sorted = append(sorted, string(id))
	}
	sort.Strings(sorted)

	result := min
	for i := 1; i < len(sorted); i++ {
		a, b := sorted[i-1], sorted[i]
		if a == b {
			continue
		}

		common := 0
		for common < len(a) && common < len(b) && a[common] == b[common] {
			common++
		}

		if common+1 > result {
			result = common + 1
		}
	}

	return result
}
