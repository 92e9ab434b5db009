package ledger

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	alice    = common.HexToAddress("0xA11CE00000000000000000000000000000000000")
	bob      = common.HexToAddress("0xB0B0000000000000000000000000000000000000")
	operator = common.HexToAddress("0x0E00000000000000000000000000000000000000")
	weth     = common.HexToAddress("0xE000000000000000000000000000000000000000")
	dai      = common.HexToAddress("0xDA10000000000000000000000000000000000000")

	contract = common.HexToAddress("0x0C00000000000000000000000000000000000000")
	id1      = big.NewInt(1)
	id2      = big.NewInt(2)
)

func TestTokenBookMintAndBalance(t *testing.T) {
	tb := NewTokenBook()

	if err := tb.Mint(weth, alice, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := tb.Mint(weth, alice, big.NewInt(50)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if got := tb.BalanceOf(alice, weth); got.Cmp(big.NewInt(150)) != 0 {
		t.Errorf("balance = %s, want 150", got)
	}

	// Balances are per token identity.
	if got := tb.BalanceOf(alice, dai); got.Sign() != 0 {
		t.Errorf("dai balance = %s, want 0", got)
	}
	if got := tb.BalanceOf(bob, weth); got.Sign() != 0 {
		t.Errorf("bob balance = %s, want 0", got)
	}

	if err := tb.Mint(weth, alice, big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("zero mint err = %v, want ErrInvalidAmount", err)
	}
	if err := tb.Mint(weth, alice, nil); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("nil mint err = %v, want ErrInvalidAmount", err)
	}
}

func TestTokenBookBurn(t *testing.T) {
	tb := NewTokenBook()
	if err := tb.Mint(weth, alice, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	if err := tb.Burn(weth, alice, big.NewInt(30)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if got := tb.BalanceOf(alice, weth); got.Cmp(big.NewInt(70)) != 0 {
		t.Errorf("balance = %s, want 70", got)
	}
	if err := tb.Burn(weth, alice, big.NewInt(100)); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("overburn err = %v, want ErrInsufficientBalance", err)
	}
}

func TestTokenBookTransferSelf(t *testing.T) {
	tb := NewTokenBook()
	if err := tb.Mint(weth, alice, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	// Owner moving its own funds needs no allowance.
	if err := tb.Transfer(alice, alice, bob, weth, big.NewInt(60)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := tb.BalanceOf(alice, weth); got.Cmp(big.NewInt(40)) != 0 {
		t.Errorf("alice balance = %s, want 40", got)
	}
	if got := tb.BalanceOf(bob, weth); got.Cmp(big.NewInt(60)) != 0 {
		t.Errorf("bob balance = %s, want 60", got)
	}

	if err := tb.Transfer(alice, alice, bob, weth, big.NewInt(41)); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("overdraw err = %v, want ErrInsufficientBalance", err)
	}
	// Zero amount is a no-op, not an error.
	if err := tb.Transfer(alice, alice, bob, weth, big.NewInt(0)); err != nil {
		t.Errorf("zero transfer err = %v, want nil", err)
	}
}

func TestTokenBookTransferConsumesAllowance(t *testing.T) {
	tb := NewTokenBook()
	if err := tb.Mint(weth, alice, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	if err := tb.Transfer(operator, alice, bob, weth, big.NewInt(10)); !errors.Is(err, ErrInsufficientAllowance) {
		t.Fatalf("unapproved transfer err = %v, want ErrInsufficientAllowance", err)
	}

	tb.Approve(weth, alice, operator, big.NewInt(50))
	if got := tb.Allowance(alice, operator, weth); got.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("allowance = %s, want 50", got)
	}

	if err := tb.Transfer(operator, alice, bob, weth, big.NewInt(30)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := tb.Allowance(alice, operator, weth); got.Cmp(big.NewInt(20)) != 0 {
		t.Errorf("allowance after spend = %s, want 20", got)
	}
	if err := tb.Transfer(operator, alice, bob, weth, big.NewInt(21)); !errors.Is(err, ErrInsufficientAllowance) {
		t.Errorf("overspend err = %v, want ErrInsufficientAllowance", err)
	}

	tb.IncreaseAllowance(weth, alice, operator, big.NewInt(5))
	if got := tb.Allowance(alice, operator, weth); got.Cmp(big.NewInt(25)) != 0 {
		t.Errorf("allowance after increase = %s, want 25", got)
	}
}

// A transfer that fails on balance must not consume allowance.
func TestTokenBookFailedTransferKeepsAllowance(t *testing.T) {
	tb := NewTokenBook()
	if err := tb.Mint(weth, alice, big.NewInt(10)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	tb.Approve(weth, alice, operator, big.NewInt(100))

	if err := tb.Transfer(operator, alice, bob, weth, big.NewInt(50)); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("err = %v, want ErrInsufficientBalance", err)
	}
	if got := tb.Allowance(alice, operator, weth); got.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("allowance = %s, want 100 untouched", got)
	}
}

func TestOptionBookMintBurnBalance(t *testing.T) {
	ob := NewOptionBook()

	if err := ob.Mint(contract, id1, alice, big.NewInt(5)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if got := ob.BalanceOf(alice, contract, id1); got.Cmp(big.NewInt(5)) != 0 {
		t.Errorf("balance = %s, want 5", got)
	}
	// Balances are per option id within the collection.
	if got := ob.BalanceOf(alice, contract, id2); got.Sign() != 0 {
		t.Errorf("id2 balance = %s, want 0", got)
	}

	if err := ob.Burn(contract, id1, alice, big.NewInt(2)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if got := ob.BalanceOf(alice, contract, id1); got.Cmp(big.NewInt(3)) != 0 {
		t.Errorf("balance after burn = %s, want 3", got)
	}
	if err := ob.Burn(contract, id1, alice, big.NewInt(10)); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("overburn err = %v, want ErrInsufficientBalance", err)
	}
}

func TestOptionBookApprovalForAll(t *testing.T) {
	ob := NewOptionBook()
	if err := ob.Mint(contract, id1, alice, big.NewInt(5)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	if err := ob.Transfer(operator, alice, bob, contract, id1, big.NewInt(1)); !errors.Is(err, ErrNotApproved) {
		t.Fatalf("unapproved transfer err = %v, want ErrNotApproved", err)
	}

	ob.SetApprovalForAll(contract, alice, operator, true)
	if !ob.IsApprovedForAll(alice, operator, contract) {
		t.Fatal("approval must be visible")
	}
	if err := ob.Transfer(operator, alice, bob, contract, id1, big.NewInt(2)); err != nil {
		t.Fatalf("approved transfer: %v", err)
	}
	if got := ob.BalanceOf(bob, contract, id1); got.Cmp(big.NewInt(2)) != 0 {
		t.Errorf("bob balance = %s, want 2", got)
	}

	// Approval is collection-wide, so it also covers other ids.
	if err := ob.Mint(contract, id2, alice, big.NewInt(1)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := ob.Transfer(operator, alice, bob, contract, id2, big.NewInt(1)); err != nil {
		t.Fatalf("other-id transfer: %v", err)
	}

	ob.SetApprovalForAll(contract, alice, operator, false)
	if ob.IsApprovedForAll(alice, operator, contract) {
		t.Fatal("approval must be revocable")
	}
	if err := ob.Transfer(operator, alice, bob, contract, id1, big.NewInt(1)); !errors.Is(err, ErrNotApproved) {
		t.Errorf("post-revoke transfer err = %v, want ErrNotApproved", err)
	}
}

func TestOptionBookTransferSelf(t *testing.T) {
	ob := NewOptionBook()
	if err := ob.Mint(contract, id1, alice, big.NewInt(3)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	if err := ob.Transfer(alice, alice, bob, contract, id1, big.NewInt(3)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if got := ob.BalanceOf(alice, contract, id1); got.Sign() != 0 {
		t.Errorf("alice balance = %s, want 0", got)
	}
	if err := ob.Transfer(alice, alice, bob, contract, id1, big.NewInt(1)); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("drained transfer err = %v, want ErrInsufficientBalance", err)
	}
}

func TestOptionBookNilOptionID(t *testing.T) {
	ob := NewOptionBook()

	// Nil id aliases id 0, never id 1.
	if err := ob.Mint(contract, nil, alice, big.NewInt(1)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if got := ob.BalanceOf(alice, contract, big.NewInt(0)); got.Cmp(big.NewInt(1)) != 0 {
		t.Errorf("id 0 balance = %s, want 1", got)
	}
	if got := ob.BalanceOf(alice, contract, id1); got.Sign() != 0 {
		t.Errorf("id 1 balance = %s, want 0", got)
	}
}
