package types

import "testing"

func TestScopeKeyString(t *testing.T) {
	tests := []struct {
		scope ScopeKey
		want  string
	}{
		{SharedScope(), "shared"},
		{UserScope("alice"), "user:alice"},
		{HistoryScope("alice", ""), "history:alice"},
		{HistoryScope("alice", "conv1"), "history:alice:conv1"},
	}
	for _, tt := range tests {
		if got := tt.scope.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestScopeKeyCollection(t *testing.T) {
	tests := []struct {
		scope ScopeKey
		want  string
	}{
		{SharedScope(), "docs_shared"},
		{UserScope("alice"), "docs_user_alice"},
		{HistoryScope("alice", ""), "history_alice"},
		{HistoryScope("alice", "conv1"), "history_alice_conv1"},
	}
	for _, tt := range tests {
		if got := tt.scope.Collection(); got != tt.want {
			t.Errorf("Collection() = %q, want %q", got, tt.want)
		}
	}
}

func TestIsHistory(t *testing.T) {
	if SharedScope().IsHistory() || UserScope("a").IsHistory() {
		t.Error("document scopes report IsHistory")
	}
	if !HistoryScope("a", "").IsHistory() {
		t.Error("history scope does not report IsHistory")
	}
}
