package decision

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"mercator-hq/minerva/pkg/rules/ast"
)

// Fingerprint computes the stable content hash of a normalized context.
// Facts are serialized in sorted key order with an explicit type tag per
// value, and set members are sorted, so two contexts holding the same facts
// always hash identically regardless of map iteration or insertion order.
func Fingerprint(facts map[string]*ast.ValueNode) string {
	keys := make([]string, 0, len(facts))
	for k := range facts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		v := facts[k]
		if v == nil {
			continue
		}
		fmt.Fprintf(h, "%s=%s;", k, canonicalValue(v))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func canonicalValue(v *ast.ValueNode) string {
	switch v.Type {
	case ast.ValueTypeString:
		s, _ := v.AsString()
		return "s:" + s
	case ast.ValueTypeNumber:
		n, _ := v.AsNumber()
		return "n:" + strconv.FormatFloat(n, 'g', -1, 64)
	case ast.ValueTypeBoolean:
		b, _ := v.AsBool()
		return "b:" + strconv.FormatBool(b)
	case ast.ValueTypeSet:
		members, _ := v.AsSet()
		sorted := make([]string, len(members))
		copy(sorted, members)
		sort.Strings(sorted)
		return "set:" + strings.Join(sorted, ",")
	default:
		return "?:" + fmt.Sprint(v.Value)
	}
}
