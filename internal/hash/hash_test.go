package hash

import "testing"

func TestSHA256_KnownValue(t *testing.T) {
	// sha256("1-May-07"), the funding-round fixture date.
	const want = "b68de50c08b1f742ff44c88bf930ac9e76324a4a65e19f95030409107563d48c"
	if got := SHA256("1-May-07"); got != want {
		t.Fatalf("SHA256(1-May-07) = %s, want %s", got, want)
	}
}

func TestFuncs_Deterministic(t *testing.T) {
	for _, name := range []string{"sha256", "xxh3"} {
		fn, err := ByName(name)
		if err != nil {
			t.Fatalf("ByName(%s): %v", name, err)
		}
		a := fn("1-May-07")
		b := fn("1-May-07")
		if a != b {
			t.Fatalf("%s not deterministic: %s != %s", name, a, b)
		}
		if c := fn("2-May-07"); c == a {
			t.Fatalf("%s(2-May-07) collides with %s(1-May-07)", name, name)
		}
	}
}

func TestByName_Default(t *testing.T) {
	fn, err := ByName("")
	if err != nil {
		t.Fatalf("ByName(\"\"): %v", err)
	}
	if got, want := fn("x"), SHA256("x"); got != want {
		t.Fatalf("default digest = %s, want sha256 %s", got, want)
	}
}

func TestByName_Unknown(t *testing.T) {
	if _, err := ByName("md5"); err == nil {
		t.Fatal("ByName(md5) succeeded, want error")
	}
}
