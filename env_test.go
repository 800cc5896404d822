package jobsh

import (
	"errors"
	"reflect"
	"testing"
)

func TestEnvironmentSetGet(t *testing.T) {
	env := NewEnvironment()
	if err := env.Set("", "x"); !errors.Is(err, ErrEmptyName) {
		t.Errorf("Set(\"\") error = %v, want ErrEmptyName", err)
	}

	env.Set("A", "1")
	env.Set("A", "2")
	if v, ok := env.Get("A"); !ok || v != "2" {
		t.Errorf("Get(A) = %q, %t; want last assignment", v, ok)
	}

	env.Unset("A")
	if _, ok := env.Get("A"); ok {
		t.Error("A still set after Unset")
	}
	if env.Value("A") != "" {
		t.Error("Value of unset variable is not empty")
	}
}

func TestEnvironmentFrom(t *testing.T) {
	env := EnvironmentFrom([]string{"B=2", "A=1", "=bad", "noequals", "C=x=y"})
	want := []string{"A=1", "B=2", "C=x=y"}
	if got := env.Environ(); !reflect.DeepEqual(got, want) {
		t.Errorf("Environ() = %v, want %v", got, want)
	}
	if env.Len() != 3 {
		t.Errorf("Len() = %d", env.Len())
	}
}
