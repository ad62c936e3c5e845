package models

// LoginRequest is the sign-in body. UserID is optional: when empty a fresh
// anonymous id is minted, mirroring anonymous auth.
type LoginRequest struct {
	UserID string `json:"userId,omitempty"`
	Name   string `json:"name,omitempty"`
}

// LoginResponse carries the bearer token and the (possibly minted) user id.
type LoginResponse struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
}

// SaveProfileRequest sets the caller's display name.
type SaveProfileRequest struct {
	Name string `json:"name" binding:"required"`
}

// CreateRoomRequest is the body for creating a room.
type CreateRoomRequest struct {
	Name string `json:"name" binding:"required"`
	// OwnerName seeds the creator's member entry; falls back to the
	// stored profile name when empty.
	OwnerName string `json:"ownerName,omitempty"`
}

// JoinRoomRequest is the body for joining an existing room.
type JoinRoomRequest struct {
	DisplayName string `json:"displayName,omitempty"`
}

// WishlistRequest replaces the caller's wishlist text.
type WishlistRequest struct {
	Wishlist string `json:"wishlist"`
}

// SnapshotType tags messages on the rooms WebSocket stream.
type SnapshotType string

const (
	// SnapshotTypeRooms carries the full set of rooms the subscriber
	// belongs to, re-sent after every committed change.
	SnapshotTypeRooms SnapshotType = "rooms"
	SnapshotTypeError SnapshotType = "error"
)

// SnapshotMessage is the wire envelope pushed to WebSocket subscribers.
type SnapshotMessage struct {
	Type  SnapshotType `json:"type"`
	Rooms []*Room      `json:"rooms,omitempty"`
	Error string       `json:"error,omitempty"`
}
