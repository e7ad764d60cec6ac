package bodies

import "testing"

func TestFromString(t *testing.T) {
	for _, name := range []string{"Earth", "earth", "SUN", "Moon", "luna", "Mars", "venus", "Jupiter"} {
		if _, err := FromString(name); err != nil {
			t.Fatalf("%s: %s", name, err)
		}
	}
	if _, err := FromString("Vulcan"); err == nil {
		t.Fatal("Vulcan should not exist")
	}
	moon, _ := FromString("moon")
	if !moon.Equals(Moon) {
		t.Fatal("moon aliases differ")
	}
}

func TestJ(t *testing.T) {
	if Earth.J(2) != Earth.J2 || Earth.J(3) != Earth.J3 || Earth.J(4) != Earth.J4 {
		t.Fatal("J factors not returned")
	}
	if Earth.J(5) != 0 {
		t.Fatal("J5 is not supported")
	}
	if Earth.GM() != 3.98600433e5 {
		t.Fatalf("incorrect GM: %f", Earth.GM())
	}
	if Earth.Equals(Mars) {
		t.Fatal("Earth is not Mars")
	}
}
