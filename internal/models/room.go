package models

import "time"

// RoomStatus is the lifecycle state of a room. The only legal transition is
// StatusOpen -> StatusDrawn, and it happens at most once.
type RoomStatus string

const (
	StatusOpen  RoomStatus = "open"
	StatusDrawn RoomStatus = "drawn"
)

// Member is one participant's state inside a room.
type Member struct {
	Name     string `json:"name"`
	Wishlist string `json:"wishlist"`
	// SantaTo is the id of the member this participant gifts to.
	// Empty until the room has been drawn; never the member's own id.
	SantaTo string `json:"santaTo,omitempty"`
}

// Room is the shared document for one gift exchange. All mutations go
// through the store's transactional update; the struct itself carries no
// locking.
type Room struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	OwnerID   string            `json:"ownerId"`
	Status    RoomStatus        `json:"status"`
	Members   map[string]Member `json:"members"`
	CreatedAt time.Time         `json:"createdAt"`
}

// IsMember reports whether userID has a member entry in the room.
func (r *Room) IsMember(userID string) bool {
	_, ok := r.Members[userID]
	return ok
}

// MemberIDs returns the ids of all members in unspecified order.
func (r *Room) MemberIDs() []string {
	ids := make([]string, 0, len(r.Members))
	for id := range r.Members {
		ids = append(ids, id)
	}
	return ids
}

// Clone returns a deep copy of the room. Transactional updates mutate a
// clone so a failed attempt never leaks changes into a shared snapshot.
func (r *Room) Clone() *Room {
	cp := *r
	cp.Members = make(map[string]Member, len(r.Members))
	for id, m := range r.Members {
		cp.Members[id] = m
	}
	return &cp
}

// Profile is the per-participant document holding the display name a user
// signed in with.
type Profile struct {
	Name string `json:"name"`
}
