package services

import (
	"reflect"
	"testing"

	"confsync/internal/core/domain"
	"confsync/internal/core/ports"
)

func TestSubscribedParticipants(t *testing.T) {
	scenes := domain.NewSynchronizedObjectID("scenes")
	roomA := domain.NewScopedSynchronizedObjectID("whiteboard", "room-a")
	roomB := domain.NewScopedSynchronizedObjectID("whiteboard", "room-b")
	wildcard := domain.NewSynchronizedObjectID("whiteboard")

	subscriptions := ports.ConferenceSubscriptions{
		"p-exact":    {scenes},
		"p-scoped-a": {roomA},
		"p-scoped-b": {roomB},
		"p-wildcard": {wildcard},
		"p-other":    {domain.NewSynchronizedObjectID("rooms")},
	}

	tests := []struct {
		name string
		id   domain.SynchronizedObjectID
		want []domain.ParticipantID
	}{
		{
			name: "exact unscoped match",
			id:   scenes,
			want: []domain.ParticipantID{"p-exact"},
		},
		{
			name: "scoped id reaches exact scope and wildcard subscribers",
			id:   roomA,
			want: []domain.ParticipantID{"p-scoped-a", "p-wildcard"},
		},
		{
			name: "other scope excluded",
			id:   roomB,
			want: []domain.ParticipantID{"p-scoped-b", "p-wildcard"},
		},
		{
			name: "unscoped id does not reach scoped subscribers",
			id:   wildcard,
			want: []domain.ParticipantID{"p-wildcard"},
		},
		{
			name: "unknown kind reaches nobody",
			id:   domain.NewSynchronizedObjectID("polls"),
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SubscribedParticipants(subscriptions, tt.id)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSubscribedParticipantsSorted(t *testing.T) {
	id := domain.NewSynchronizedObjectID("rooms")
	subscriptions := ports.ConferenceSubscriptions{
		"zeta":  {id},
		"alpha": {id},
		"mike":  {id},
	}

	got := SubscribedParticipants(subscriptions, id)
	want := []domain.ParticipantID{"alpha", "mike", "zeta"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}
