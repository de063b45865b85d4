package randutil

import (
	"testing"
)

func TestInt63n(t *testing.T) {
	expect := Int63n()

	actual := Int63n()

	if expect == actual {
		t.Errorf("actual %v, expect %v", actual, expect)
	}
}

func TestUint64n(t *testing.T) {
	expect := Uint64n()

	actual := Uint64n()

	if expect == actual {
		t.Errorf("actual %v, expect %v", actual, expect)
	}
}

func TestStringN(t *testing.T) {
	expect := StringN(8)

	actual := StringN(8)

	if expect == actual {
		t.Errorf("actual %v, expect %v", actual, expect)
	}

	if len(StringN(16)) != 16 {
		t.Errorf("expect length 16")
	}
}
