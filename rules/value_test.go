package rules

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestCoerce(t *testing.T) {
	testCases := []struct {
		name     string
		raw      string
		wantKind ValueKind
		wantNum  string
		wantText string
	}{
		{"Currency", "$500", KindNumeric, "500", ""},
		{"Currency with cents", "$12.75", KindNumeric, "12.75", ""},
		{"Currency with space", "$ 500", KindNumeric, "500", ""},
		{"Percentage", "1%", KindNumeric, "0.01", ""},
		{"Fractional percentage", "0.7%", KindNumeric, "0.007", ""},
		{"Plain integer", "2", KindNumeric, "2", ""},
		{"Plain decimal", "2.5", KindNumeric, "2.5", ""},
		{"Negative", "-3", KindNumeric, "-3", ""},
		{"Leading dot", ".5", KindNumeric, "0.5", ""},
		{"Double quoted", `"123"`, KindText, "", "123"},
		{"Single quoted", `'abc'`, KindText, "", "abc"},
		{"Quoted with padding", `"  abc "`, KindText, "", "abc"},
		{"Bareword", "XYZ", KindText, "", "XYZ"},
		{"Bare words", "Summer Sale", KindText, "", "Summer Sale"},
		{"Exponent stays text", "5e2", KindText, "", "5e2"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := Coerce(tc.raw)
			if err != nil {
				t.Fatalf("Coerce(%q) failed: %v", tc.raw, err)
			}
			if v.Kind() != tc.wantKind {
				t.Fatalf("Coerce(%q) kind = %s, want %s", tc.raw, v.Kind(), tc.wantKind)
			}
			if tc.wantKind == KindNumeric {
				want := decimal.RequireFromString(tc.wantNum)
				if !v.Number().Equal(want) {
					t.Errorf("Coerce(%q) = %s, want %s", tc.raw, v.Number(), want)
				}
				return
			}
			if v.Literal() != tc.wantText {
				t.Errorf("Coerce(%q) = %q, want %q", tc.raw, v.Literal(), tc.wantText)
			}
		})
	}
}

func TestCoerceMarkerPriority(t *testing.T) {
	// "$" wins over "%", so the remainder must be a clean number
	if _, err := Coerce("$5%"); err == nil {
		t.Error("Coerce(\"$5%\") should fail: currency marker leaves \"5%\"")
	}

	// a quoted currency literal is still currency
	v, err := Coerce(`$10`)
	if err != nil || v.Kind() != KindNumeric {
		t.Errorf("Coerce(\"$10\") = %v, %v; want numeric", v, err)
	}
}

func TestCoerceInvalidNumericLiterals(t *testing.T) {
	for _, raw := range []string{"$", "$abc", "%", "abc%", "$1,000"} {
		if _, err := Coerce(raw); err == nil {
			t.Errorf("Coerce(%q) should fail", raw)
		}
	}
}

func TestValueString(t *testing.T) {
	if got := Numeric(decimal.RequireFromString("0.01")).String(); got != "0.01" {
		t.Errorf("numeric String() = %q", got)
	}
	if got := Text("abc").String(); got != `"abc"` {
		t.Errorf("text String() = %q", got)
	}
}
