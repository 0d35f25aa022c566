package validators

import (
	"net/url"
	"strings"
)

// bech32 decode/checksum-verification, ported from a reference bech32
// implementation (BIP-173 charset and generator polynomial) to recognize the
// bech32-encoded "lnurl1..." form of an LNURL (spec §4.3 item 2) without
// pulling in a dedicated LNURL dependency for a single syntactic check.
const (
	bech32Charset   = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"
	bech32Separator = '1'
)

var bech32Generator = [5]uint32{0x3b6a57b2, 0x26508e6d, 0x1ea119fa, 0x3d4233dd, 0x2a1462b3}

func bech32Polymod(values []byte) uint32 {
	chk := uint32(1)
	for _, v := range values {
		top := chk >> 25
		chk = (chk&0x1ffffff)<<5 ^ uint32(v)
		for i, g := range bech32Generator {
			if ((top >> uint(i)) & 1) == 1 {
				chk ^= g
			}
		}
	}
	return chk
}

func bech32HrpExpand(hrp string) []byte {
	out := make([]byte, 0, len(hrp)*2+1)
	for i := 0; i < len(hrp); i++ {
		out = append(out, hrp[i]>>5)
	}
	out = append(out, 0)
	for i := 0; i < len(hrp); i++ {
		out = append(out, hrp[i]&31)
	}
	return out
}

func verifyBech32Checksum(hrp string, data []byte) bool {
	vals := bech32HrpExpand(hrp)
	vals = append(vals, data...)
	return bech32Polymod(vals) == 1
}

// bech32Decode verifies bech's checksum and returns its human-readable
// part; the data payload is checked but not returned.
func bech32Decode(bech string) (hrp string, ok bool) {
	if strings.ToUpper(bech) != bech && strings.ToLower(bech) != bech {
		return "", false
	}
	lower := strings.ToLower(bech)

	pos := strings.LastIndexByte(lower, bech32Separator)
	if pos < 1 || pos+7 > len(lower) {
		return "", false
	}

	hrp = lower[:pos]
	for i := 0; i < len(hrp); i++ {
		if hrp[i] < 33 || hrp[i] > 126 {
			return "", false
		}
	}

	data := make([]byte, 0, len(lower)-pos-1)
	for i := pos + 1; i < len(lower); i++ {
		idx := strings.IndexByte(bech32Charset, lower[i])
		if idx < 0 {
			return "", false
		}
		data = append(data, byte(idx))
	}

	if !verifyBech32Checksum(hrp, data) {
		return "", false
	}
	return hrp, true
}

// isValidLNURL reports whether s is a syntactically valid LNURL per spec
// §4.3 item 2: either a bech32-encoded string with human-readable part
// "lnurl" (checksum-verified), or an absolute http(s) URL.
func isValidLNURL(s string) bool {
	if s == "" {
		return false
	}
	if strings.HasPrefix(strings.ToLower(s), "lnurl1") {
		hrp, ok := bech32Decode(s)
		return ok && hrp == "lnurl"
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// isLud16Charset restricts a lightning address's local part (spec §4.3
// item 2): letters, digits, dot, underscore, percent, plus, dash.
func isLud16Charset(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.' || r == '_' || r == '%' || r == '+' || r == '-':
		default:
			return false
		}
	}
	return true
}

// isValidLightningAddress checks addr against spec §4.3 item 2's tightened
// lud16 rules: email-shaped, local part at most 64 characters, domain at
// most 253 characters, every label alphanumeric-or-dash with no leading or
// trailing dot or dash anywhere in the local part or any domain label.
func isValidLightningAddress(addr string) bool {
	at := strings.Split(addr, "@")
	if len(at) != 2 {
		return false
	}
	local, domain := at[0], at[1]

	if local == "" || len(local) > 64 || !isLud16Charset(local) {
		return false
	}
	if strings.HasPrefix(local, ".") || strings.HasSuffix(local, ".") {
		return false
	}
	if strings.HasPrefix(local, "-") || strings.HasSuffix(local, "-") {
		return false
	}

	if domain == "" || len(domain) > 253 {
		return false
	}
	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if label == "" {
			return false
		}
		for _, r := range label {
			if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-') {
				return false
			}
		}
		if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return false
		}
	}
	tld := labels[len(labels)-1]
	if len(tld) < 2 {
		return false
	}
	return true
}
