package findex

import "testing"

func TestDeriveSubkeysDeterministic(t *testing.T) {
	seed := SecretFromBytes(append([]byte(nil), make([]byte, SeedLength)...))
	defer seed.Destroy()

	kP1, kE1 := deriveSubkeys(seed)
	kP2, kE2 := deriveSubkeys(seed)

	if string(kP1.Bytes()) != string(kP2.Bytes()) {
		t.Fatalf("K_p not deterministic across calls")
	}

	if string(kE1.Bytes()) != string(kE2.Bytes()) {
		t.Fatalf("K_e not deterministic across calls")
	}

	if len(kP1.Bytes()) != subkeyLengthP {
		t.Fatalf("K_p length = %d, want %d", len(kP1.Bytes()), subkeyLengthP)
	}

	if len(kE1.Bytes()) != subkeyLengthE {
		t.Fatalf("K_e length = %d, want %d", len(kE1.Bytes()), subkeyLengthE)
	}

	kP1.Destroy()
	kE1.Destroy()
	kP2.Destroy()
	kE2.Destroy()
}

func TestDeriveSubkeysDistinct(t *testing.T) {
	seed := RandomSecret(SeedLength)
	defer seed.Destroy()

	kP, kE := deriveSubkeys(seed)
	defer kP.Destroy()
	defer kE.Destroy()

	if string(kP.Bytes()) == string(kE.Bytes()[:subkeyLengthP]) {
		t.Fatalf("K_p and K_e should not collide by construction")
	}
}

func TestHashKeywordDeterministic(t *testing.T) {
	a := hashKeyword([]byte("cat"))
	b := hashKeyword([]byte("cat"))
	c := hashKeyword([]byte("dog"))

	if a != b {
		t.Fatalf("hashKeyword not deterministic")
	}

	if a == c {
		t.Fatalf("hashKeyword collided for distinct keywords")
	}
}

func TestRandomSeedBytesLength(t *testing.T) {
	b := randomSeedBytes()
	if len(b) != SeedLength {
		t.Fatalf("len(randomSeedBytes()) = %d, want %d", len(b), SeedLength)
	}
}
