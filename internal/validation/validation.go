// Package validation provides input validation for report submissions.
package validation

import (
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20 // 1MB

// MaxDescriptionLength bounds the free-text description of a report.
const MaxDescriptionLength = 2000

// Chain identifies a supported blockchain.
type Chain string

const (
	ChainETH   Chain = "ETH"
	ChainBTC   Chain = "BTC"
	ChainSOL   Chain = "SOL"
	ChainTRON  Chain = "TRON"
	ChainBSC   Chain = "BSC"
	ChainMATIC Chain = "MATIC"
	ChainOther Chain = "OTHER"
)

// Chains lists every supported chain identifier.
var Chains = []Chain{ChainETH, ChainBTC, ChainSOL, ChainTRON, ChainBSC, ChainMATIC, ChainOther}

// ScamTypes lists the accepted scam classification values.
var ScamTypes = []string{
	"phishing", "rug_pull", "fake_exchange", "hack", "ponzi",
	"impersonation", "fake_airdrop", "romance", "other",
}

var (
	btcAddressRegex  = regexp.MustCompile(`^(1|3|bc1)[a-zA-HJ-NP-Z0-9]{25,62}$`)
	solAddressRegex  = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)
	tronAddressRegex = regexp.MustCompile(`^T[a-zA-HJ-NP-Z0-9]{33}$`)
)

// IsValidChain reports whether the value is a supported chain identifier.
func IsValidChain(chain string) bool {
	for _, c := range Chains {
		if string(c) == chain {
			return true
		}
	}
	return false
}

// IsValidScamType reports whether the value is a known scam classification.
func IsValidScamType(scamType string) bool {
	for _, s := range ScamTypes {
		if s == scamType {
			return true
		}
	}
	return false
}

// IsValidAddress checks an address against the format expected for its
// chain. OTHER accepts any non-empty address.
func IsValidAddress(chain Chain, address string) bool {
	switch chain {
	case ChainETH, ChainBSC, ChainMATIC:
		return isPrefixedHexAddress(address)
	case ChainBTC:
		return btcAddressRegex.MatchString(address)
	case ChainSOL:
		return solAddressRegex.MatchString(address)
	case ChainTRON:
		return tronAddressRegex.MatchString(address)
	case ChainOther:
		return address != ""
	default:
		return false
	}
}

// isPrefixedHexAddress requires the 0x prefix. common.IsHexAddress alone
// also accepts bare 40-hex strings, which would store the same address
// under two keys and never match the prefixed form in sanction feeds.
func isPrefixedHexAddress(address string) bool {
	return strings.HasPrefix(address, "0x") && common.IsHexAddress(address)
}

// DetectChain guesses the chain from an address format. TRON and SOL are
// checked before the looser BTC and hex patterns to avoid false positives.
// Returns empty string when nothing matches.
func DetectChain(address string) Chain {
	switch {
	case address == "":
		return ""
	case tronAddressRegex.MatchString(address):
		return ChainTRON
	case btcAddressRegex.MatchString(address):
		return ChainBTC
	case solAddressRegex.MatchString(address):
		return ChainSOL
	case isPrefixedHexAddress(address):
		// ETH, BSC and MATIC share the 0x format; default to ETH.
		return ChainETH
	default:
		return ""
	}
}

// IsValidURL checks that a string parses as an absolute http(s) URL.
func IsValidURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// SanitizeString trims whitespace, collapses runs of whitespace into a
// single space, and strips null bytes. Length bounds are a validation
// concern; over-long input must be rejected, never silently truncated.
func SanitizeString(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Join(strings.Fields(s), " ")
	return strings.ReplaceAll(s, "\x00", "")
}

// SanitizeAddress normalizes an address for storage and lookup. Hex-style
// addresses are lowercased; base58-style chains are case-sensitive and left
// untouched.
func SanitizeAddress(chain Chain, address string) string {
	address = strings.TrimSpace(address)
	switch chain {
	case ChainETH, ChainBSC, ChainMATIC:
		return strings.ToLower(address)
	default:
		return address
	}
}

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}
