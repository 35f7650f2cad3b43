package ledger_test

import (
	"testing"

	"PoolLedger/internal/ledger"
	fpmath "PoolLedger/internal/math"

	"github.com/google/uuid"
)

// ============================================================================
// Test: PoolState
// ============================================================================

func TestPoolState_StartsAtUnitIndex(t *testing.T) {
	p := ledger.NewPoolState(1_000)
	if p.CumulativeIndex != fpmath.IndexScale {
		t.Errorf("initial index: got %d, want %d", p.CumulativeIndex, fpmath.IndexScale)
	}
	if p.AvailableLiquidity() != 0 {
		t.Errorf("empty pool liquidity: got %d, want 0", p.AvailableLiquidity())
	}
}

func TestPoolState_AdvanceSameSecond_NoOp(t *testing.T) {
	p := ledger.NewPoolState(1_000)
	p.TotalDeposits = 1_000
	p.TotalBorrows = 500

	if moved := p.Advance(1_000); moved {
		t.Error("advance at the same second should not move the index")
	}
	if moved := p.Advance(999); moved {
		t.Error("advance into the past should not move the index")
	}
	if p.CumulativeIndex != fpmath.IndexScale {
		t.Errorf("index moved: got %d", p.CumulativeIndex)
	}
}

func TestPoolState_AdvanceOneYear_BaseRate(t *testing.T) {
	p := ledger.NewPoolState(0)
	p.TotalDeposits = 1_000

	// Zero utilization holds the 5% base rate: index 1.0 -> 1.05.
	if moved := p.Advance(fpmath.SecondsPerYear); !moved {
		t.Fatal("expected the index to move")
	}
	want := fpmath.IndexScale + fpmath.IndexScale*5/100
	if p.CumulativeIndex != want {
		t.Errorf("index after one year: got %d, want %d", p.CumulativeIndex, want)
	}
	if p.LastUpdate != fpmath.SecondsPerYear {
		t.Errorf("LastUpdate: got %d, want %d", p.LastUpdate, fpmath.SecondsPerYear)
	}
}

func TestPoolState_AdvanceIsMonotone(t *testing.T) {
	p := ledger.NewPoolState(0)
	p.TotalDeposits = 1_000
	p.TotalBorrows = 900

	prev := p.CumulativeIndex
	for now := int64(3600); now <= 10*3600; now += 3600 {
		p.Advance(now)
		if p.CumulativeIndex < prev {
			t.Fatalf("index decreased at now=%d: %d < %d", now, p.CumulativeIndex, prev)
		}
		prev = p.CumulativeIndex
	}
}

func TestPoolState_ProjectIndexDoesNotCommit(t *testing.T) {
	p := ledger.NewPoolState(0)
	p.TotalDeposits = 1_000

	projected := p.ProjectIndex(fpmath.SecondsPerYear)
	if projected <= fpmath.IndexScale {
		t.Errorf("projection should exceed the unit index, got %d", projected)
	}
	if p.CumulativeIndex != fpmath.IndexScale {
		t.Error("projection mutated the committed index")
	}
	if p.LastUpdate != 0 {
		t.Error("projection mutated LastUpdate")
	}

	// Committing afterwards lands on the projected value.
	p.Advance(fpmath.SecondsPerYear)
	if p.CumulativeIndex != projected {
		t.Errorf("commit diverged from projection: %d vs %d", p.CumulativeIndex, projected)
	}
}

func TestPoolState_CanonicalBytesDeterministic(t *testing.T) {
	p1 := ledger.NewPoolState(42)
	p1.TotalDeposits = 1_000
	p1.TotalBorrows = 250

	p2 := ledger.NewPoolState(42)
	p2.TotalDeposits = 1_000
	p2.TotalBorrows = 250

	b1 := p1.CanonicalBytes()
	b2 := p2.CanonicalBytes()
	if string(b1) != string(b2) {
		t.Error("identical pools produced different canonical bytes")
	}

	p2.TotalBorrows = 251
	if string(b1) == string(p2.CanonicalBytes()) {
		t.Error("different pools produced identical canonical bytes")
	}
}

// ============================================================================
// Test: Positions
// ============================================================================

func TestDepositPosition_SettleFoldsInterest(t *testing.T) {
	pos := &ledger.DepositPosition{
		Account:       uuid.New(),
		Principal:     1_000,
		IndexSnapshot: fpmath.IndexScale,
	}

	index := fpmath.IndexScale + fpmath.IndexScale*5/100
	pos.Settle(index, 100)

	if pos.Principal != 1_050 {
		t.Errorf("settled principal: got %d, want 1050", pos.Principal)
	}
	if pos.IndexSnapshot != index {
		t.Errorf("snapshot not updated: got %d, want %d", pos.IndexSnapshot, index)
	}
	if pos.Version != 1 {
		t.Errorf("version: got %d, want 1", pos.Version)
	}

	// Settling again at the same index accrues nothing.
	pos.Settle(index, 200)
	if pos.Principal != 1_050 {
		t.Errorf("re-settle changed principal: got %d", pos.Principal)
	}
}

func TestDepositPosition_ValueAtDoesNotMutate(t *testing.T) {
	pos := &ledger.DepositPosition{
		Principal:     2_000,
		IndexSnapshot: fpmath.IndexScale,
	}

	index := fpmath.IndexScale + fpmath.IndexScale/10
	if got := pos.ValueAt(index); got != 2_200 {
		t.Errorf("ValueAt: got %d, want 2200", got)
	}
	if pos.Principal != 2_000 {
		t.Error("ValueAt mutated the position")
	}
}

func TestBorrowPosition_SettleCompounds(t *testing.T) {
	pos := &ledger.BorrowPosition{
		Account:        uuid.New(),
		Principal:      500,
		DrawnPrincipal: 500,
		IndexSnapshot:  fpmath.IndexScale,
	}

	// Accrual is delta-based: principal * (index - snapshot) / scale.
	// A second settlement applies the next delta to the settled
	// principal, so interest compounds across settlement boundaries.
	idx1 := fpmath.IndexScale + fpmath.IndexScale*10/100
	pos.Settle(idx1, 100)
	if pos.Principal != 550 {
		t.Fatalf("first settle: got %d, want 550", pos.Principal)
	}

	idx2 := idx1 + fpmath.IndexScale*10/100
	pos.Settle(idx2, 200)
	if pos.Principal != 605 {
		t.Errorf("second settle: got %d, want 605", pos.Principal)
	}
	if pos.DrawnPrincipal != 500 {
		t.Errorf("settle must not touch DrawnPrincipal: got %d", pos.DrawnPrincipal)
	}
}

func TestBook_OnePositionPerAccount(t *testing.T) {
	bk := ledger.NewBook()
	account := uuid.New()

	if bk.Deposit(account) != nil {
		t.Error("fresh book should have no deposit position")
	}

	pos := bk.EnsureDeposit(account, fpmath.IndexScale, 100)
	if pos == nil {
		t.Fatal("EnsureDeposit returned nil")
	}
	if again := bk.EnsureDeposit(account, fpmath.IndexScale*2, 200); again != pos {
		t.Error("EnsureDeposit created a second position for the same account")
	}

	bk.CloseDeposit(account)
	if bk.Deposit(account) != nil {
		t.Error("position survived CloseDeposit")
	}
}

func TestBook_BorrowLifecycle(t *testing.T) {
	bk := ledger.NewBook()
	account := uuid.New()

	bk.SetBorrow(&ledger.BorrowPosition{
		Account:          account,
		Principal:        500,
		DrawnPrincipal:   500,
		CollateralAmount: 1_000,
		CollateralToken:  "ETH",
	})

	pos := bk.Borrow(account)
	if pos == nil {
		t.Fatal("borrow position not found")
	}
	if len(bk.Borrows()) != 1 {
		t.Errorf("Borrows(): got %d entries, want 1", len(bk.Borrows()))
	}

	// Closing removes debt and collateral as a unit.
	bk.CloseBorrow(account)
	if bk.Borrow(account) != nil {
		t.Error("position survived CloseBorrow")
	}
}

// ============================================================================
// Test: TokenRegistry
// ============================================================================

func TestTokenRegistry_SetAndGet(t *testing.T) {
	tr := ledger.NewTokenRegistry()

	if err := tr.SetTokenInfo("ETH", true, 80, 2_000_000); err != nil {
		t.Fatalf("SetTokenInfo failed: %v", err)
	}

	info, ok := tr.Get("ETH")
	if !ok {
		t.Fatal("ETH should be listed")
	}
	if info.CollateralFactor != 80 || info.Price != 2_000_000 {
		t.Errorf("unexpected entry: %+v", info)
	}
	if !tr.IsSupported("ETH") {
		t.Error("ETH should be supported")
	}
	if tr.IsSupported("DOGE") {
		t.Error("DOGE should not be supported")
	}
}

func TestTokenRegistry_RejectsBadParameters(t *testing.T) {
	tr := ledger.NewTokenRegistry()

	if err := tr.SetTokenInfo("", true, 50, 1_000_000); err == nil {
		t.Error("empty symbol should be rejected")
	}
	if err := tr.SetTokenInfo("ETH", true, 101, 1_000_000); err == nil {
		t.Error("factor above 100 should be rejected")
	}
	if err := tr.SetTokenInfo("ETH", true, -1, 1_000_000); err == nil {
		t.Error("negative factor should be rejected")
	}
	if err := tr.SetTokenInfo("ETH", true, 50, -1); err == nil {
		t.Error("negative price should be rejected")
	}
}

func TestTokenRegistry_UpdatePrice(t *testing.T) {
	tr := ledger.NewTokenRegistry()

	if err := tr.UpdatePrice("ETH", 1_000_000); err == nil {
		t.Error("updating an unlisted token should fail")
	}

	if err := tr.SetTokenInfo("ETH", true, 80, 1_000_000); err != nil {
		t.Fatalf("SetTokenInfo failed: %v", err)
	}
	if err := tr.UpdatePrice("ETH", -5); err == nil {
		t.Error("negative price should be rejected")
	}
	if err := tr.UpdatePrice("ETH", 3_000_000); err != nil {
		t.Fatalf("UpdatePrice failed: %v", err)
	}

	info, _ := tr.Get("ETH")
	if info.Price != 3_000_000 {
		t.Errorf("price: got %d, want 3000000", info.Price)
	}
}

func TestTokenRegistry_DelistKeepsEntry(t *testing.T) {
	tr := ledger.NewTokenRegistry()

	if err := tr.SetTokenInfo("ETH", true, 80, 1_000_000); err != nil {
		t.Fatalf("SetTokenInfo failed: %v", err)
	}
	if err := tr.SetTokenInfo("ETH", false, 80, 1_000_000); err != nil {
		t.Fatalf("delist failed: %v", err)
	}

	// Delisted tokens stay queryable for open positions' valuation.
	info, ok := tr.Get("ETH")
	if !ok {
		t.Fatal("delisted token should remain in the registry")
	}
	if info.IsSupported {
		t.Error("token should be marked unsupported")
	}
	if tr.IsSupported("ETH") {
		t.Error("IsSupported should be false after delisting")
	}
}
