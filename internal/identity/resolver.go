// Package identity decides when two differently shaped collection items refer to
// the same product.
//
// Upstream sources disagree on where the product reference lives: server cart rows
// use product_id, catalog summaries use id, locally authored guest entries may only
// carry a sku, and some payloads nest the product under product.id or product.slug.
// The resolver treats every one of those fields as a candidate token and calls two
// items equal when their token sets intersect.
package identity

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/angelmondragon/storefront-collections/pkg/types"
)

const generatedPrefix = "p-"

// Resolver computes identity tokens for items. The zero value is not usable; use
// New or the package-level helpers.
type Resolver struct {
	now func() time.Time
}

// New builds a resolver. A nil clock falls back to time.Now.
func New(now func() time.Time) *Resolver {
	if now == nil {
		now = time.Now
	}
	return &Resolver{now: now}
}

var defaultResolver = New(nil)

// CandidateTokens collects every present identity value of item, as strings.
func CandidateTokens(item *types.Item) map[string]struct{} {
	return defaultResolver.CandidateTokens(item)
}

// Matches reports whether item exposes targetID under any identity field.
func Matches(item *types.Item, targetID any) bool {
	return defaultResolver.Matches(item, targetID)
}

// SameProduct reports whether a and b share at least one identity token.
func SameProduct(a, b *types.Item) bool {
	return defaultResolver.SameProduct(a, b)
}

// CanonicalID picks the single token used to key new local entries.
func CanonicalID(item *types.Item) string {
	return defaultResolver.CanonicalID(item)
}

// CandidateTokens collects product_id, id, sku, product.id and product.slug.
func (r *Resolver) CandidateTokens(item *types.Item) map[string]struct{} {
	tokens := make(map[string]struct{}, 5)
	if item == nil {
		return tokens
	}
	add := func(value string) {
		if value != "" {
			tokens[value] = struct{}{}
		}
	}
	add(item.ProductID.String())
	add(item.ID.String())
	add(item.SKU.String())
	if item.Product != nil {
		add(item.Product.ID.String())
		add(item.Product.Slug)
	}
	return tokens
}

// Matches reports whether targetID, coerced to a string, is one of item's tokens.
func (r *Resolver) Matches(item *types.Item, targetID any) bool {
	target, ok := TokenOf(targetID)
	if !ok {
		return false
	}
	_, found := r.CandidateTokens(item)[target]
	return found
}

// SameProduct reports whether the candidate token sets of a and b intersect.
func (r *Resolver) SameProduct(a, b *types.Item) bool {
	left := r.CandidateTokens(a)
	if len(left) == 0 {
		return false
	}
	for token := range r.CandidateTokens(b) {
		if _, ok := left[token]; ok {
			return true
		}
	}
	return false
}

// CanonicalID returns the first present value in the order product.id, product_id,
// sku, product.slug, id. Items with none of those get a generated "p-<millis>" id,
// which is the only non-deterministic branch.
func (r *Resolver) CanonicalID(item *types.Item) string {
	if item != nil {
		candidates := []string{}
		if item.Product != nil {
			candidates = append(candidates, item.Product.ID.String())
		}
		candidates = append(candidates, item.ProductID.String(), item.SKU.String())
		if item.Product != nil {
			candidates = append(candidates, item.Product.Slug)
		}
		candidates = append(candidates, item.ID.String())
		for _, candidate := range candidates {
			if candidate != "" {
				return candidate
			}
		}
	}
	return generatedPrefix + strconv.FormatInt(r.now().UnixMilli(), 10)
}

// HasStableIdentity reports whether CanonicalID would be deterministic for item.
func (r *Resolver) HasStableIdentity(item *types.Item) bool {
	return len(r.CandidateTokens(item)) > 0
}

// TokenOf converts an identifier of any common Go shape into its token string.
// Integral floats render without a fraction so 7.0 and 7 compare equal.
func TokenOf(value any) (string, bool) {
	var out string
	switch v := value.(type) {
	case nil:
		return "", false
	case string:
		out = v
	case types.FlexID:
		out = v.String()
	case *types.FlexID:
		if v == nil {
			return "", false
		}
		out = v.String()
	case int:
		out = strconv.FormatInt(int64(v), 10)
	case int32:
		out = strconv.FormatInt(int64(v), 10)
	case int64:
		out = strconv.FormatInt(v, 10)
	case uint:
		out = strconv.FormatUint(uint64(v), 10)
	case uint32:
		out = strconv.FormatUint(uint64(v), 10)
	case uint64:
		out = strconv.FormatUint(v, 10)
	case float32:
		out = formatFloat(float64(v))
	case float64:
		out = formatFloat(v)
	case fmt.Stringer:
		out = v.String()
	default:
		out = fmt.Sprint(v)
	}
	return out, out != ""
}

func formatFloat(f float64) string {
	if f == math.Trunc(f) && !math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'f', 0, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
