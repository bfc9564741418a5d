package keymap

import (
	"reflect"
	"testing"

	"github.com/vango-dev/fluxstore/pkg/notify"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		spec any
		want KeyMap
	}{
		{"nil", nil, nil},
		{"list", []string{"a", "b"}, KeyMap{"a": "a", "b": "b"}},
		{"set", map[string]struct{}{"a": {}, "b": {}}, KeyMap{"a": "a", "b": "b"}},
		{"bool set skips false", map[string]bool{"a": true, "b": false}, KeyMap{"a": "a"}},
		{"string mapping", map[string]string{"AppUser": "user"}, KeyMap{"AppUser": "user"}},
		{"mapping with literal", KeyMap{"a": "x", "size": 20}, KeyMap{"a": "x", "size": 20}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.spec)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Normalize(%v) = %v, want %v", tt.spec, got, tt.want)
			}
		})
	}
}

func TestNormalizeListEqualsMapping(t *testing.T) {
	list := Normalize([]string{"a", "b"})
	mapping := Normalize(map[string]any{"a": "a", "b": "b"})

	if !reflect.DeepEqual(list, mapping) {
		t.Errorf("list %v != mapping %v", list, mapping)
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	once := Normalize([]string{"a", "b"})
	twice := Normalize(once)

	if !reflect.DeepEqual(once, twice) {
		t.Errorf("Normalize(Normalize(x)) = %v, want %v", twice, once)
	}
}

func TestNormalizeRejectsUnsupported(t *testing.T) {
	defer func() {
		ue, ok := recover().(*notify.UsageError)
		if !ok || ue.Code != notify.CodeUnsupportedKeyMap {
			t.Errorf("expected usage error %s", notify.CodeUnsupportedKeyMap)
		}
	}()
	Normalize(42)
}

func TestKeyMapTarget(t *testing.T) {
	m := KeyMap{"AppUser": "user", "size": 20}

	if name, ok := m.Target("AppUser"); !ok || name != "user" {
		t.Errorf("Target(AppUser) = %q, %v", name, ok)
	}
	if _, ok := m.Target("size"); ok {
		t.Error("literal entry reported as resolvable")
	}
	if len(Of("x", "y").Keys()) != 2 {
		t.Error("Of did not select both keys")
	}
}

func change(keys ...string) notify.Change {
	return notify.Change{Keys: keys}
}

func TestShouldUpdate(t *testing.T) {
	tests := []struct {
		name      string
		change    notify.Change
		selection any
		want      bool
	}{
		{"typed change, no selection", change("k"), nil, true},
		{"typeless change, no selection", change(), nil, false},
		{"typeless change, empty selection", change(), []string{}, false},
		{"unrelated key", change("x"), []string{"k"}, false},
		{"one of several keys", change("k", "x"), []string{"k"}, true},
		{"mapping selection", change("AppUser"), KeyMap{"AppUser": "user"}, true},
		{"set selection", change("b"), map[string]struct{}{"a": {}, "b": {}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldUpdate(tt.change, tt.selection); got != tt.want {
				t.Errorf("ShouldUpdate(%v, %v) = %v, want %v", tt.change.Keys, tt.selection, got, tt.want)
			}
		})
	}
}

func TestShouldUpdateTypelessWithSelectionPanics(t *testing.T) {
	defer func() {
		ue, ok := recover().(*notify.UsageError)
		if !ok {
			t.Fatal("expected a usage panic")
		}
		if ue.Code != notify.CodeUntypedSelection {
			t.Errorf("Code = %s, want %s", ue.Code, notify.CodeUntypedSelection)
		}
	}()
	ShouldUpdate(change(), []string{"k"})
}
