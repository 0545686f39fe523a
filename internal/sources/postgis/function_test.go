package postgis

import "testing"

func TestContainsJSONArgDetectsJSON(t *testing.T) {
	cases := []struct {
		args string
		want bool
	}{
		{"z integer, x integer, y integer", false},
		{"z integer, x integer, y integer, params json", true},
		{"z integer, x integer, y integer, params jsonb", true},
	}
	for _, c := range cases {
		if got := containsJSONArg(c.args); got != c.want {
			t.Errorf("containsJSONArg(%q) = %v, want %v", c.args, got, c.want)
		}
	}
}

func TestFunctionQuerySynthesisNoJSONArg(t *testing.T) {
	s := &FunctionSource{hasJSONArg: false}
	query := `SELECT "public"."my_tiles"($1::integer, $2::integer, $3::integer)`
	s.tileQuery = functionCallQuery("public", "my_tiles", s.hasJSONArg)
	if s.tileQuery != query {
		t.Fatalf("unexpected query: %s", s.tileQuery)
	}
}

func TestOpenFunctionBuildsThreeArgQuery(t *testing.T) {
	query := functionCallQuery("public", "my_tiles", false)
	want := `SELECT "public"."my_tiles"($1::integer, $2::integer, $3::integer)`
	if query != want {
		t.Errorf("got %q, want %q", query, want)
	}
}
