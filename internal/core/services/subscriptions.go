package services

import (
	"sort"

	"confsync/internal/core/domain"
	"confsync/internal/core/ports"
)

// SubscribedParticipants resolves which participants an update for id must
// reach. Exact-scope matches are always included; a participant subscribed to
// the unscoped form of a kind matches every scoped instance of that kind,
// current and future. A participant subscribed to one scope matches only that
// scope.
func SubscribedParticipants(subscriptions ports.ConferenceSubscriptions, id domain.SynchronizedObjectID) []domain.ParticipantID {
	var participantIDs []domain.ParticipantID
	for participantID, subscribed := range subscriptions {
		for _, sub := range subscribed {
			if subscriptionMatches(sub, id) {
				participantIDs = append(participantIDs, participantID)
				break
			}
		}
	}

	sort.Slice(participantIDs, func(i, j int) bool { return participantIDs[i] < participantIDs[j] })
	return participantIDs
}

func subscriptionMatches(subscription, id domain.SynchronizedObjectID) bool {
	if subscription == id {
		return true
	}
	return subscription.Kind == id.Kind && !subscription.IsScoped()
}
