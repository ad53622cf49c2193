package fixedpoint

import (
	"errors"
	"math/big"
	"testing"

	sdkmath "cosmossdk.io/math"
)

func TestAddSub(t *testing.T) {
	a := sdkmath.NewInt(700)
	b := sdkmath.NewInt(300)

	sum, err := Add(a, b)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !sum.Equal(sdkmath.NewInt(1000)) {
		t.Fatalf("add: got %s, want 1000", sum)
	}

	diff, err := Sub(a, b)
	if err != nil {
		t.Fatalf("sub: %v", err)
	}
	if !diff.Equal(sdkmath.NewInt(400)) {
		t.Fatalf("sub: got %s, want 400", diff)
	}

	if _, err := Sub(b, a); !errors.Is(err, ErrUnderflow) {
		t.Fatalf("sub underflow: got %v, want ErrUnderflow", err)
	}
}

func TestNegativeOperandsRejected(t *testing.T) {
	neg := sdkmath.NewInt(-1)
	one := sdkmath.NewInt(1)

	if _, err := Add(neg, one); !errors.Is(err, ErrNegative) {
		t.Fatalf("add: got %v, want ErrNegative", err)
	}
	if _, err := Mul(one, neg); !errors.Is(err, ErrNegative) {
		t.Fatalf("mul: got %v, want ErrNegative", err)
	}
	if _, err := Div(neg, one); !errors.Is(err, ErrNegative) {
		t.Fatalf("div: got %v, want ErrNegative", err)
	}
}

func TestMulOverflow(t *testing.T) {
	huge := sdkmath.NewIntWithDecimal(1, 40)
	if _, err := Mul(huge, huge); !errors.Is(err, ErrOverflow) {
		t.Fatalf("mul: got %v, want ErrOverflow", err)
	}
}

func TestDivByZero(t *testing.T) {
	if _, err := Div(sdkmath.NewInt(1), sdkmath.ZeroInt()); !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("div: got %v, want ErrDivisionByZero", err)
	}
	if _, err := MulDiv(sdkmath.NewInt(1), sdkmath.NewInt(1), sdkmath.ZeroInt()); !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("muldiv: got %v, want ErrDivisionByZero", err)
	}
}

func TestMulDivKeepsIntermediate(t *testing.T) {
	// a*b overflows 255 bits on its own, but the quotient is small.
	a := sdkmath.NewIntWithDecimal(5, 40)
	b := sdkmath.NewIntWithDecimal(2, 40)
	denom := sdkmath.NewIntWithDecimal(1, 76)

	out, err := MulDiv(a, b, denom)
	if err != nil {
		t.Fatalf("muldiv: %v", err)
	}
	if !out.Equal(sdkmath.NewInt(100_000)) {
		t.Fatalf("muldiv: got %s, want 100000", out)
	}
}

func TestMulDivWideProduct(t *testing.T) {
	// 2^135 * 2^135 exceeds the representable range; the quotient 2^131
	// does not and must come back exact, not as an overflow.
	pow2 := func(n uint) sdkmath.Int {
		return sdkmath.NewIntFromBigInt(new(big.Int).Lsh(big.NewInt(1), n))
	}

	out, err := MulDiv(pow2(135), pow2(135), pow2(139))
	if err != nil {
		t.Fatalf("muldiv: %v", err)
	}
	if !out.Equal(pow2(131)) {
		t.Fatalf("muldiv: got %s, want 2^131", out)
	}
}

func TestMulDivQuotientOverflow(t *testing.T) {
	// A huge product over a denominator of one leaves the quotient itself
	// out of range.
	huge := sdkmath.NewIntWithDecimal(1, 40)
	if _, err := MulDiv(huge, huge, sdkmath.OneInt()); !errors.Is(err, ErrOverflow) {
		t.Fatalf("muldiv: got %v, want ErrOverflow", err)
	}
}

func TestApplyRate(t *testing.T) {
	amount := sdkmath.NewIntWithDecimal(10, 18) // 10 TAO in wei
	rate := sdkmath.NewInt(3_000_000)           // 0.3%

	fee, err := ApplyRate(amount, rate)
	if err != nil {
		t.Fatalf("apply rate: %v", err)
	}
	want := sdkmath.NewIntWithDecimal(3, 16) // 0.03 TAO
	if !fee.Equal(want) {
		t.Fatalf("apply rate: got %s, want %s", fee, want)
	}
}

func TestMicroMacroRoundtrip(t *testing.T) {
	wei := sdkmath.NewIntWithDecimal(7, 18)

	rao, err := ToMicro(wei)
	if err != nil {
		t.Fatalf("to micro: %v", err)
	}
	if !rao.Equal(sdkmath.NewIntWithDecimal(7, 9)) {
		t.Fatalf("to micro: got %s", rao)
	}

	back, err := ToMacro(rao)
	if err != nil {
		t.Fatalf("to macro: %v", err)
	}
	if !back.Equal(wei) {
		t.Fatalf("roundtrip: got %s, want %s", back, wei)
	}
}

func TestToMicroTruncates(t *testing.T) {
	wei := sdkmath.NewInt(1_999_999_999)
	rao, err := ToMicro(wei)
	if err != nil {
		t.Fatalf("to micro: %v", err)
	}
	if !rao.Equal(sdkmath.NewInt(1)) {
		t.Fatalf("to micro: got %s, want 1", rao)
	}
}
