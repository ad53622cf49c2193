package utils

import (
	"testing"

	sdkmath "cosmossdk.io/math"
)

func TestWeiToTao(t *testing.T) {
	got, err := WeiToTao(sdkmath.NewIntWithDecimal(5, 18))
	if err != nil {
		t.Fatalf("wei to tao: %v", err)
	}
	if got != 5.0 {
		t.Fatalf("wei to tao: got %f, want 5.0", got)
	}
}

func TestRaoToTokenFraction(t *testing.T) {
	got, err := RaoToToken(sdkmath.NewInt(1_500_000_000))
	if err != nil {
		t.Fatalf("rao to token: %v", err)
	}
	if got != 1.5 {
		t.Fatalf("rao to token: got %f, want 1.5", got)
	}
}

func TestNegativeAmountAllowed(t *testing.T) {
	got, err := WeiToTao(sdkmath.NewIntWithDecimal(-2, 18))
	if err != nil {
		t.Fatalf("signed amount: %v", err)
	}
	if got != -2.0 {
		t.Fatalf("signed amount: got %f, want -2.0", got)
	}
}

func TestInvalidPrecisionRejected(t *testing.T) {
	if _, err := SDKIntToFloat64(sdkmath.OneInt(), 19); err == nil {
		t.Fatal("precision above 18 must be rejected")
	}
}
