package service

import (
	"sort"

	"github.com/noah-isme/gestao-docs-api/internal/models"
)

// IsRelevant reports whether m belongs to the conversation picked by sel as seen by myID.
func IsRelevant(m models.Message, sel models.ConversationSelector, myID string) bool {
	switch sel.Type {
	case models.SelectorUser:
		if sel.ID == models.GlobalUsersChannel {
			return m.IsBroadcast()
		}
		return (m.SenderID == sel.ID && m.ReceiverIs(myID)) || (m.SenderID == myID && m.ReceiverIs(sel.ID))
	case models.SelectorSector:
		return m.InSector(sel.ID)
	default:
		return false
	}
}

// countsAsUnread reports whether an insert outside the open conversation bumps the unread counter.
func countsAsUnread(m models.Message, userID, sectorID string) bool {
	if m.SenderID == userID {
		return false
	}
	return m.ReceiverIs(userID) || (sectorID != "" && m.InSector(sectorID)) || m.IsBroadcast()
}

// The functions below are pure reducers over a message list. They never
// modify their input slice.

func sortMessages(list []models.Message) []models.Message {
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	return list
}

func indexOf(list []models.Message, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}

// mergeFetched unions a fetched snapshot with held messages that are still
// relevant and absent from the snapshot.
func mergeFetched(held, fetched []models.Message, sel models.ConversationSelector, myID string) []models.Message {
	seen := make(map[string]struct{}, len(fetched))
	out := make([]models.Message, 0, len(fetched)+len(held))
	for _, m := range fetched {
		if _, dup := seen[m.ID]; dup || !IsRelevant(m, sel, myID) {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, m)
	}
	for _, m := range held {
		if _, ok := seen[m.ID]; ok || !IsRelevant(m, sel, myID) {
			continue
		}
		if m.IsTemporary() && confirmedIn(out, m) {
			continue
		}
		seen[m.ID] = struct{}{}
		out = append(out, m)
	}
	return sortMessages(out)
}

// confirmedIn reports whether list already holds the stored copy of placeholder.
func confirmedIn(list []models.Message, placeholder models.Message) bool {
	return placeholder.PendingID != "" && indexOf(list, placeholder.PendingID) >= 0
}

// pendingIndex finds the placeholder waiting for the server id.
func pendingIndex(list []models.Message, id string) int {
	for i := range list {
		if list[i].IsTemporary() && list[i].PendingID == id {
			return i
		}
	}
	return -1
}

// filterRelevant keeps only messages relevant to sel.
func filterRelevant(list []models.Message, sel models.ConversationSelector, myID string) []models.Message {
	out := make([]models.Message, 0, len(list))
	for _, m := range list {
		if IsRelevant(m, sel, myID) {
			out = append(out, m)
		}
	}
	return out
}

// applyInsert merges a pushed or confirmed message. Known ids are ignored; a
// message of my own replaces the placeholder that reserved its id.
func applyInsert(list []models.Message, m models.Message, myID string) ([]models.Message, bool) {
	if indexOf(list, m.ID) >= 0 {
		return list, false
	}
	out := append([]models.Message(nil), list...)
	if m.SenderID == myID {
		if i := pendingIndex(out, m.ID); i >= 0 {
			out[i] = m
			return sortMessages(out), true
		}
	}
	return sortMessages(append(out, m)), true
}

// applyConfirmed swaps the placeholder tempID for the stored copy unless a
// push already delivered it.
func applyConfirmed(list []models.Message, tempID string, stored models.Message) ([]models.Message, bool) {
	i := indexOf(list, tempID)
	if i < 0 {
		return list, false
	}
	if indexOf(list, stored.ID) >= 0 {
		return removeMessage(list, tempID)
	}
	out := append([]models.Message(nil), list...)
	out[i] = stored
	return sortMessages(out), true
}

func applyUpdate(list []models.Message, m models.Message) ([]models.Message, bool) {
	i := indexOf(list, m.ID)
	if i < 0 {
		return list, false
	}
	out := append([]models.Message(nil), list...)
	out[i] = m
	return sortMessages(out), true
}

func removeMessage(list []models.Message, id string) ([]models.Message, bool) {
	i := indexOf(list, id)
	if i < 0 {
		return list, false
	}
	out := make([]models.Message, 0, len(list)-1)
	out = append(out, list[:i]...)
	return append(out, list[i+1:]...), true
}

// markedRead flags the listed ids as read.
func markedRead(list []models.Message, ids []string) []models.Message {
	if len(ids) == 0 {
		return list
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	out := append([]models.Message(nil), list...)
	for i := range out {
		if _, ok := set[out[i].ID]; ok {
			out[i].Read = true
		}
	}
	return out
}

// unreadIDs lists confirmed messages from others that are still unread.
func unreadIDs(list []models.Message, myID string) []string {
	var ids []string
	for _, m := range list {
		if !m.Read && m.SenderID != myID && !m.IsTemporary() {
			ids = append(ids, m.ID)
		}
	}
	return ids
}
