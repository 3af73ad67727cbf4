package spotify

import (
	"fmt"
	"math/big"
	"strings"
)

// base62 alphabet with lowercase before uppercase.
const gidCharset = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

var big62 = big.NewInt(62)

// TrackIDToGID converts a 22 character base62 id into its 32 character hex GID.
func TrackIDToGID(id string) (string, error) {
	n := new(big.Int)
	for _, r := range id {
		idx := strings.IndexRune(gidCharset, r)
		if idx < 0 {
			return "", fmt.Errorf("invalid base62 character %q in id %q", r, id)
		}
		n.Mul(n, big62)
		n.Add(n, big.NewInt(int64(idx)))
	}
	return leftPad(n.Text(16), 32), nil
}

// GIDToTrackID converts a hex GID back into its 22 character base62 id.
func GIDToTrackID(gid string) (string, error) {
	n, ok := new(big.Int).SetString(gid, 16)
	if !ok {
		return "", fmt.Errorf("invalid gid %q", gid)
	}

	var out []byte
	mod := new(big.Int)
	for n.Sign() > 0 {
		n.DivMod(n, big62, mod)
		out = append(out, gidCharset[mod.Int64()])
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return leftPad(string(out), 22), nil
}

func leftPad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}
