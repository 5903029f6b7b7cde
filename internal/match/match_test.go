package match

import "testing"

func TestMatches(t *testing.T) {
	tests := []struct {
		name    string
		meta    map[string]any
		pattern map[string]any
		want    bool
	}{
		{name: "nil pattern", meta: map[string]any{"authRole": "login"}, pattern: nil, want: false},
		{name: "empty pattern", meta: map[string]any{"authRole": "login"}, pattern: map[string]any{}, want: false},
		{name: "nil meta", meta: nil, pattern: map[string]any{"authRole": "login"}, want: false},
		{name: "equal", meta: map[string]any{"authRole": "login"}, pattern: map[string]any{"authRole": "login"}, want: true},
		{name: "extra meta keys", meta: map[string]any{"authRole": "login", "x": 1}, pattern: map[string]any{"authRole": "login"}, want: true},
		{name: "value mismatch", meta: map[string]any{"authRole": "logout"}, pattern: map[string]any{"authRole": "login"}, want: false},
		{name: "missing key", meta: map[string]any{"role": "login"}, pattern: map[string]any{"authRole": "login"}, want: false},
		{name: "type mismatch", meta: map[string]any{"n": int64(1)}, pattern: map[string]any{"n": 1}, want: false},
		{name: "nil value both", meta: map[string]any{"authRole": nil}, pattern: map[string]any{"authRole": nil}, want: true},
		{name: "nil value one side", meta: map[string]any{"authRole": "x"}, pattern: map[string]any{"authRole": nil}, want: false},
		{name: "uncomparable equal", meta: map[string]any{"tags": []string{"a"}}, pattern: map[string]any{"tags": []string{"a"}}, want: true},
		{name: "uncomparable differ", meta: map[string]any{"tags": []string{"a"}}, pattern: map[string]any{"tags": []string{"b"}}, want: false},
		{name: "multi key partial", meta: map[string]any{"a": 1}, pattern: map[string]any{"a": 1, "b": 2}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Matches(tt.meta, tt.pattern); got != tt.want {
				t.Fatalf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassifyPrecedence(t *testing.T) {
	shared := map[string]any{"public": true}
	p := Patterns{
		Visitor: shared,
		Login:   shared,
		Logout:  map[string]any{"authRole": "logout"},
		Refresh: []map[string]any{{"authRole": "refreshToken"}, {"authRole": "logout"}},
	}

	if got := Classify(map[string]any{"public": true}, p); got != RoleVisitor {
		t.Fatalf("expected visitor to win over login, got %d", got)
	}
	if got := Classify(map[string]any{"authRole": "logout"}, p); got != RoleLogout {
		t.Fatalf("expected logout to win over refresh, got %d", got)
	}
	if got := Classify(map[string]any{"authRole": "refreshToken"}, p); got != RoleRefresh {
		t.Fatalf("expected refresh, got %d", got)
	}
	if got := Classify(map[string]any{"authRole": "other"}, p); got != RoleProtected {
		t.Fatalf("expected protected, got %d", got)
	}
	if got := Classify(nil, Patterns{}); got != RoleProtected {
		t.Fatalf("expected protected with no patterns, got %d", got)
	}
}
