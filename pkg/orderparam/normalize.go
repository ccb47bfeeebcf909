// Package orderparam coerces loosely typed order-type and time-in-force inputs
// into the closed sets in package core.
//
// Every input is reduced to a list of candidate strings, tried in order: the value
// itself, then its Name(), then its Value(). Each candidate runs through an ordered
// rule list; the first rule that matches wins. When nothing matches, the default
// branch returns Limit / GTC.
package orderparam

import (
	"fmt"
	"strings"

	"github.com/uhyunpark/tradedriver/pkg/core"
)

type namer interface{ Name() string }

type valuer interface{ Value() any }

type stringValuer interface{ Value() string }

type rule[T any] struct {
	match  func(s string) bool
	result T
}

var orderTypeRules = []rule[core.OrderType]{
	{func(s string) bool { return strings.Contains(s, "limit") }, core.Limit},
	{func(s string) bool { return strings.Contains(s, "market") }, core.Market},
	{func(s string) bool { return strings.HasPrefix(s, "l") }, core.Limit},
	{func(s string) bool { return strings.HasPrefix(s, "m") }, core.Market},
}

var tifRules = []rule[core.TimeInForce]{
	{func(s string) bool { return s == "GTC" }, core.GTC},
	{func(s string) bool { return s == "IOC" }, core.IOC},
	{func(s string) bool { return s == "FOK" }, core.FOK},
	{func(s string) bool { return s == "POSTONLY" || s == "POSTONLYTIF" }, core.PostOnly},
}

// OrderType maps v onto Limit or Market. Unrecognized input (including nil) is Limit.
func OrderType(v any) core.OrderType {
	if t, ok := v.(core.OrderType); ok {
		return t
	}
	for _, c := range candidates(v) {
		if t, ok := apply(orderTypeRules, strings.ToLower(strings.TrimSpace(c))); ok {
			return t
		}
	}
	return core.Limit
}

// TimeInForce maps v onto GTC, IOC, FOK or PostOnly. Unrecognized input (including nil) is GTC.
func TimeInForce(v any) core.TimeInForce {
	if t, ok := v.(core.TimeInForce); ok {
		return t
	}
	for _, c := range candidates(v) {
		key := strings.ToUpper(strings.TrimSpace(c))
		key = strings.NewReplacer("-", "", "_", "", " ", "").Replace(key)
		if t, ok := apply(tifRules, key); ok {
			return t
		}
	}
	return core.GTC
}

func apply[T any](rules []rule[T], s string) (T, bool) {
	if s != "" {
		for _, r := range rules {
			if r.match(s) {
				return r.result, true
			}
		}
	}
	var zero T
	return zero, false
}

func candidates(v any) []string {
	if v == nil {
		return nil
	}
	var out []string
	switch x := v.(type) {
	case string:
		out = append(out, x)
	case []byte:
		out = append(out, string(x))
	case fmt.Stringer:
		out = append(out, x.String())
	}
	if n, ok := v.(namer); ok {
		out = append(out, n.Name())
	}
	switch x := v.(type) {
	case stringValuer:
		out = append(out, x.Value())
	case valuer:
		if inner, ok := x.Value().(string); ok {
			out = append(out, inner)
		}
	}
	return out
}
