package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestSubscriptionPriceMinor(t *testing.T) {
	cases := map[string]int64{
		"20":     2000,
		"19.99":  1999,
		"0.5":    50,
		"10.005": 1001,
	}
	for price, want := range cases {
		sub := &Subscription{Price: decimal.RequireFromString(price)}
		if got := sub.PriceMinor(); got != want {
			t.Fatalf("PriceMinor(%s) = %d, want %d", price, got, want)
		}
	}
}

func TestSubscriptionDuration(t *testing.T) {
	sub := &Subscription{DurationDays: 30}
	if sub.Duration() != 30*24*time.Hour {
		t.Fatalf("unexpected duration %v", sub.Duration())
	}
}

func TestSubscriptionReference(t *testing.T) {
	sub := &Subscription{}
	if sub.Reference() != "" {
		t.Fatalf("expected empty reference")
	}
	ref := "ref-1"
	sub.ExternalReference = &ref
	if sub.Reference() != "ref-1" {
		t.Fatalf("unexpected reference %q", sub.Reference())
	}
}
