package operation

import "testing"

func replaceRegistry(t *testing.T) func() {
	t.Helper()
	prev := globalRegistry
	globalRegistry = newRegistry()
	return func() { globalRegistry = prev }
}

func noopBuild(Params) (Plan, error) { return Plan{Prompt: "p"}, nil }

func TestRegisterResolveAndList(t *testing.T) {
	cleanup := replaceRegistry(t)
	defer cleanup()

	if err := Register(Definition{Key: "beta", ImageSlots: []string{"source"}, Build: noopBuild}); err != nil {
		t.Fatalf("register beta failed: %v", err)
	}
	if err := Register(Definition{Key: "Alpha ", ImageSlots: []string{"source"}, Build: noopBuild}); err != nil {
		t.Fatalf("register alpha failed: %v", err)
	}

	if _, ok := Resolve("BETA"); !ok {
		t.Fatalf("resolve should be case-insensitive")
	}
	if _, ok := Resolve(""); ok {
		t.Fatalf("empty key must not resolve")
	}

	keys := Keys()
	if len(keys) != 2 || keys[0] != "alpha" || keys[1] != "beta" {
		t.Fatalf("unexpected keys: %v", keys)
	}
}

func TestRegisterRejectsInvalidDefinitions(t *testing.T) {
	cleanup := replaceRegistry(t)
	defer cleanup()

	cases := []Definition{
		{Key: "", ImageSlots: []string{"source"}, Build: noopBuild},
		{Key: "no_slots", Build: noopBuild},
		{Key: "no_builder", ImageSlots: []string{"source"}},
	}
	for _, def := range cases {
		if err := Register(def); err == nil {
			t.Fatalf("expected registration of %q to fail", def.Key)
		}
	}

	if err := Register(Definition{Key: "dup", ImageSlots: []string{"source"}, Build: noopBuild}); err != nil {
		t.Fatalf("first registration should succeed: %v", err)
	}
	if err := Register(Definition{Key: "dup", ImageSlots: []string{"source"}, Build: noopBuild}); err == nil {
		t.Fatalf("duplicate registration should fail")
	}
}

func TestMustRegisterPanicsOnDuplicate(t *testing.T) {
	cleanup := replaceRegistry(t)
	defer cleanup()

	MustRegister(Definition{Key: "once", ImageSlots: []string{"source"}, Build: noopBuild})
	defer func() {
		if recover() == nil {
			t.Fatalf("MustRegister should panic on duplicate key")
		}
	}()
	MustRegister(Definition{Key: "once", ImageSlots: []string{"source"}, Build: noopBuild})
}

func TestParamsBool(t *testing.T) {
	params := Params{"Tops": "yes", "shoes": "0", "bad": "maybe", "empty": " "}

	if v, err := params.Bool("tops", false); err != nil || !v {
		t.Fatalf("tops should parse as true, got %v %v", v, err)
	}
	if v, err := params.Bool("shoes", true); err != nil || v {
		t.Fatalf("shoes should parse as false, got %v %v", v, err)
	}
	if v, err := params.Bool("missing", true); err != nil || !v {
		t.Fatalf("missing should fall back to default, got %v %v", v, err)
	}
	if v, err := params.Bool("empty", true); err != nil || !v {
		t.Fatalf("blank should fall back to default, got %v %v", v, err)
	}
	if _, err := params.Bool("bad", false); err == nil {
		t.Fatalf("invalid boolean should fail")
	} else if pe, ok := err.(ParamError); !ok || pe.Field != "bad" {
		t.Fatalf("expected ParamError for bad, got %#v", err)
	}
}

func TestParamsSelectedKeepsDeclarationOrder(t *testing.T) {
	toggles := []Toggle{
		{Param: "a", Phrase: "first"},
		{Param: "b", Phrase: "second", Default: true},
		{Param: "c", Phrase: "third"},
	}
	got, err := Params{"c": "true", "a": "true"}.Selected(toggles)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"first", "second", "third"}
	if len(got) != len(want) {
		t.Fatalf("unexpected selection: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected selection: %v", got)
		}
	}

	specs := ToggleSpecs(toggles)
	if specs[1].Default != "true" || specs[0].Kind != ParamBool {
		t.Fatalf("unexpected specs: %+v", specs)
	}
}
