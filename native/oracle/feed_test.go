package oracle

import (
	"math/big"
	"testing"
	"time"
)

func TestFeedRejectsStaleQuote(t *testing.T) {
	feed := NewFeed(time.Minute, 0)
	current := time.Unix(1_700_000_000, 0)
	feed.SetNowFunc(func() time.Time { return current })

	if err := feed.SetPrice("WSTETH", big.NewInt(2_000)); err != nil {
		t.Fatalf("set price: %v", err)
	}
	if _, _, err := feed.GetPrice("wsteth"); err != nil {
		t.Fatalf("fresh quote should resolve, got %v", err)
	}

	current = current.Add(2 * time.Minute)
	if _, _, err := feed.GetPrice("WSTETH"); err != ErrStaleQuote {
		t.Fatalf("expected ErrStaleQuote, got %v", err)
	}
}

func TestFeedDeviationBand(t *testing.T) {
	feed := NewFeed(time.Hour, 1_000) // 10%
	feed.SetNowFunc(func() time.Time { return time.Unix(1_700_000_000, 0) })

	if err := feed.SetPrice("ETH", big.NewInt(1_000)); err != nil {
		t.Fatalf("seed price: %v", err)
	}
	if err := feed.SetPrice("ETH", big.NewInt(1_100)); err != nil {
		t.Fatalf("10%% move must be accepted, got %v", err)
	}
	if err := feed.SetPrice("ETH", big.NewInt(1_500)); err != ErrPriceDeviation {
		t.Fatalf("expected ErrPriceDeviation, got %v", err)
	}
	// The rejected price must not replace the accepted quote.
	price, _, err := feed.GetPrice("ETH")
	if err != nil {
		t.Fatalf("get price: %v", err)
	}
	if price.Cmp(big.NewInt(1_100)) != 0 {
		t.Fatalf("expected 1100, got %s", price)
	}
}

func TestFeedPauseAndUnknownAsset(t *testing.T) {
	feed := NewFeed(time.Hour, 0)
	if _, _, err := feed.GetPrice("BTC"); err != ErrUnknownAsset {
		t.Fatalf("expected ErrUnknownAsset, got %v", err)
	}
	if err := feed.SetPrice("BTC", big.NewInt(50_000)); err != nil {
		t.Fatalf("set price: %v", err)
	}
	feed.Pause()
	if _, _, err := feed.GetPrice("BTC"); err != ErrFeedPaused {
		t.Fatalf("expected ErrFeedPaused, got %v", err)
	}
	feed.Resume()
	if _, _, err := feed.GetPrice("BTC"); err != nil {
		t.Fatalf("resumed feed should resolve, got %v", err)
	}
}

func TestFeedRejectsNonPositivePrice(t *testing.T) {
	feed := NewFeed(time.Hour, 0)
	if err := feed.SetPrice("ETH", big.NewInt(0)); err != ErrInvalidPrice {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
	if err := feed.SetPrice("ETH", nil); err != ErrInvalidPrice {
		t.Fatalf("expected ErrInvalidPrice for nil, got %v", err)
	}
}
