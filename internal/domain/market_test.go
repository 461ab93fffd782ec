package domain

import "testing"

func TestMarketPriceInvertIsInvolution(t *testing.T) {
	q := MarketPrice{
		ContractTeam: "Lakers",
		YesBid:       0.40,
		YesAsk:       0.45,
		BidSize:      10,
		AskSize:      20,
	}
	inv := q.Invert("Celtics")
	if inv.ContractTeam != "Celtics" {
		t.Errorf("inverted ContractTeam = %q, want Celtics", inv.ContractTeam)
	}
	if inv.YesBid != 1-q.YesAsk || inv.YesAsk != 1-q.YesBid {
		t.Errorf("invert bid/ask mismatch: got (%v,%v)", inv.YesBid, inv.YesAsk)
	}

	back := inv.Invert("Lakers")
	if back.YesBid != q.YesBid || back.YesAsk != q.YesAsk {
		t.Errorf("Invert(Invert(q)) = %+v, want bid/ask to match original %+v", back, q)
	}
	if back.BidSize != q.BidSize || back.AskSize != q.AskSize {
		t.Errorf("Invert(Invert(q)) sizes = (%v,%v), want original (%v,%v)", back.BidSize, back.AskSize, q.BidSize, q.AskSize)
	}
}

func TestMarketPriceIsCrossed(t *testing.T) {
	if (MarketPrice{YesBid: 0.5, YesAsk: 0.5}).IsCrossed() != true {
		t.Error("bid == ask should be crossed")
	}
	if (MarketPrice{YesBid: 0.4, YesAsk: 0.5}).IsCrossed() != false {
		t.Error("bid < ask should not be crossed")
	}
}

func TestMarketPriceIsEmpty(t *testing.T) {
	if !(MarketPrice{YesBid: 0, YesAsk: 1}).IsEmpty() {
		t.Error("bid<=0 and ask>=1 should report empty")
	}
	if (MarketPrice{YesBid: 0.1, YesAsk: 1}).IsEmpty() {
		t.Error("positive bid should not report empty")
	}
}

func TestParsedMarketCompatible(t *testing.T) {
	line := 5.5
	otherLine := 6.0

	a := ParsedMarket{MarketType: MarketSpread, Team: "Chiefs", Line: &line}
	b := ParsedMarket{MarketType: MarketSpread, Team: "Chiefs", Line: &line}
	if !a.Compatible(b) {
		t.Error("identical spread markets should be compatible")
	}

	c := ParsedMarket{MarketType: MarketSpread, Team: "Chiefs", Line: &otherLine}
	if a.Compatible(c) {
		t.Error("differing lines should not be compatible")
	}

	d := ParsedMarket{MarketType: MarketMoneyline, Team: "Chiefs"}
	if a.Compatible(d) {
		t.Error("differing market types should not be compatible")
	}

	e := ParsedMarket{MarketType: MarketMoneyline, Team: "Raiders"}
	f := ParsedMarket{MarketType: MarketMoneyline, Team: "Chiefs"}
	if e.Compatible(f) {
		t.Error("differing teams should not be compatible")
	}
}
