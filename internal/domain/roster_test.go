package domain

import "testing"

func TestMergeRosterNeverRegresses(t *testing.T) {
	current := []User{{ID: "a", Name: "Ali", LastActive: 200, LastSent: 150, SentCount: 3}}
	merged := MergeRoster(current, []User{
		{ID: "a", LastActive: 100, LastSent: 120, SentCount: 1},
		{ID: "b", Name: "Sara", LastActive: 50},
	})
	if len(merged) != 2 {
		t.Fatalf("ожидали 2 пользователя, получили %d", len(merged))
	}
	a := merged[0]
	if a.LastActive != 200 || a.LastSent != 150 || a.SentCount != 3 || a.Name != "Ali" {
		t.Fatalf("слияние откатило данные: %+v", a)
	}
	if merged[1].ID != "b" || merged[1].LastActive != 50 {
		t.Fatalf("новый пользователь должен добавиться в конец: %+v", merged[1])
	}
	if current[0].LastActive != 200 || len(current) != 1 {
		t.Fatalf("исходный срез не должен меняться")
	}
}

func TestMergeRosterAdvances(t *testing.T) {
	merged := MergeRoster([]User{{ID: "a", LastActive: 100}}, []User{{ID: "a", Name: "Ali Khan", LastActive: 300, LastSent: 250, SentCount: 1}, {ID: ""}})
	a := merged[0]
	if len(merged) != 1 || a.LastActive != 300 || a.LastSent != 250 || a.SentCount != 1 || a.Name != "Ali Khan" {
		t.Fatalf("ожидали продвинутые значения: %+v", merged)
	}
}

func TestUserFirstName(t *testing.T) {
	if got := (User{Name: "  Ali   Khan "}).FirstName(); got != "Ali" {
		t.Fatalf("ожидали Ali, получили %q", got)
	}
	if got := (User{}).FirstName(); got != DefaultName {
		t.Fatalf("ожидали %q, получили %q", DefaultName, got)
	}
}
