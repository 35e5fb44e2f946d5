package domain

import "testing"

func TestSynchronizedObjectIDString(t *testing.T) {
	tests := []struct {
		name string
		id   SynchronizedObjectID
		want string
	}{
		{name: "unscoped", id: NewSynchronizedObjectID("scenes"), want: "scenes"},
		{name: "scoped", id: NewScopedSynchronizedObjectID("whiteboard", "room-1"), want: "whiteboard:room-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.id.String(); got != tt.want {
				t.Fatalf("String() = %q, want %q", got, tt.want)
			}
			if parsed := ParseSynchronizedObjectID(tt.want); parsed != tt.id {
				t.Fatalf("Parse(%q) = %+v, want %+v", tt.want, parsed, tt.id)
			}
		})
	}
}

func TestSynchronizedObjectIDIsScoped(t *testing.T) {
	if NewSynchronizedObjectID("scenes").IsScoped() {
		t.Fatal("unscoped id reported as scoped")
	}
	if !NewScopedSynchronizedObjectID("scenes", "room-1").IsScoped() {
		t.Fatal("scoped id reported as unscoped")
	}
}

func TestSceneMappingCopyOnWrite(t *testing.T) {
	original := SceneMapping{"main": {Type: SceneGrid}}

	updated := original.Set("main", Scene{Type: SceneTalkingStick, ParticipantID: "bob"})
	if original["main"].Type != SceneGrid {
		t.Fatal("Set mutated the original mapping")
	}
	if updated["main"].Type != SceneTalkingStick {
		t.Fatalf("updated mapping = %+v", updated)
	}

	expanded := original.SetAll(map[RoomID]Scene{"b1": {Type: SceneGrid}, "b2": {Type: SceneGrid}})
	if len(original) != 1 || len(expanded) != 3 {
		t.Fatalf("SetAll sizes: original %d, expanded %d", len(original), len(expanded))
	}

	shrunk := expanded.Remove("b1", "b2")
	if len(expanded) != 3 || len(shrunk) != 1 {
		t.Fatalf("Remove sizes: expanded %d, shrunk %d", len(expanded), len(shrunk))
	}
}
