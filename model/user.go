package model

import "time"

// Card is a plant record minted by a user. A card lives embedded inside the
// aggregate of whichever user currently owns it; Owner changes only through
// an accepted trade.
type Card struct {
	ID          string    `json:"id"`
	Creator     string    `json:"creator"`
	Owner       string    `json:"owner"`
	TradeStatus bool      `json:"trade_status"`
	Name        string    `json:"name"`
	Fact        string    `json:"fact"`
	Location    string    `json:"location"`
	Rarity      string    `json:"rarity"`
	ImageURL    string    `json:"image_url"`
	InfoURL     string    `json:"info_url"`
	CreatedAt   time.Time `json:"created_at"`
}

// FriendRequest is a pending friend request. It is stored on both the
// sender's and the receiver's aggregate and is removed from both when
// resolved; it is never mutated in place.
type FriendRequest struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Receiver  string    `json:"receiver"`
	CreatedAt time.Time `json:"created_at"`
}

// InvolvesPair reports whether the request links the unordered pair {a, b}.
func (r FriendRequest) InvolvesPair(a, b string) bool {
	return (r.Sender == a && r.Receiver == b) || (r.Sender == b && r.Receiver == a)
}

// TradeOffer is an open trade proposal stored on the offering user's
// aggregate. Both cards are snapshots taken at creation time; the accept
// path compares them against current ownership to detect stale offers.
type TradeOffer struct {
	ID            string    `json:"id"`
	OfferedCard   Card      `json:"offered_card"`
	RequestedCard Card      `json:"requested_card"`
	CreatedAt     time.Time `json:"created_at"`
}

// OfferingUser returns the id of the user who made the offer.
func (o TradeOffer) OfferingUser() string { return o.OfferedCard.Owner }

// Counterpart returns the id of the user the offer was made to.
func (o TradeOffer) Counterpart() string { return o.RequestedCard.Owner }

// User is the aggregate root: one document in the store. Friendships and
// pending requests are stored redundantly on both sides of the relationship
// (a denormalized two-sided index); the reconcile package keeps the two
// copies in agreement.
type User struct {
	ID             string          `json:"id"`
	Username       string          `json:"username"`
	Cards          []Card          `json:"cards"`
	Friends        []string        `json:"friends"`
	PendingFriends []FriendRequest `json:"pending_friends"`
	Trading        []TradeOffer    `json:"trading"`

	// Version is the optimistic-concurrency stamp managed by the
	// repository. It is not part of the document payload.
	Version int64 `json:"-"`
}

// HasFriend reports whether other is in the user's friends set.
func (u *User) HasFriend(other string) bool {
	for _, f := range u.Friends {
		if f == other {
			return true
		}
	}
	return false
}

// AddFriend appends other to the friends set, skipping duplicates.
func (u *User) AddFriend(other string) {
	if !u.HasFriend(other) {
		u.Friends = append(u.Friends, other)
	}
}

// PendingWith returns the active request involving the unordered pair
// {u.ID, other}, or nil. At most one such request may exist.
func (u *User) PendingWith(other string) *FriendRequest {
	for i := range u.PendingFriends {
		if u.PendingFriends[i].InvolvesPair(u.ID, other) {
			return &u.PendingFriends[i]
		}
	}
	return nil
}

// RemovePending deletes the request with the given id. It reports whether
// a request was removed.
func (u *User) RemovePending(id string) bool {
	for i := range u.PendingFriends {
		if u.PendingFriends[i].ID == id {
			u.PendingFriends = append(u.PendingFriends[:i], u.PendingFriends[i+1:]...)
			return true
		}
	}
	return false
}

// FindCard returns the card with the given id, or nil.
func (u *User) FindCard(id string) *Card {
	for i := range u.Cards {
		if u.Cards[i].ID == id {
			return &u.Cards[i]
		}
	}
	return nil
}

// RemoveCard deletes the card with the given id and returns it, or nil if
// the user does not hold it.
func (u *User) RemoveCard(id string) *Card {
	for i := range u.Cards {
		if u.Cards[i].ID == id {
			c := u.Cards[i]
			u.Cards = append(u.Cards[:i], u.Cards[i+1:]...)
			return &c
		}
	}
	return nil
}

// FindOffer returns the open offer with the given id, or nil.
func (u *User) FindOffer(id string) *TradeOffer {
	for i := range u.Trading {
		if u.Trading[i].ID == id {
			return &u.Trading[i]
		}
	}
	return nil
}

// RemoveOffer deletes the offer with the given id. It reports whether an
// offer was removed; removal is the terminal transition for an offer.
func (u *User) RemoveOffer(id string) bool {
	for i := range u.Trading {
		if u.Trading[i].ID == id {
			u.Trading = append(u.Trading[:i], u.Trading[i+1:]...)
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the aggregate. The reconcile package clones
// aggregates before mutating them so a failed commit can roll back to the
// state that was read.
func (u *User) Clone() *User {
	c := &User{
		ID:       u.ID,
		Username: u.Username,
		Version:  u.Version,
	}
	if u.Cards != nil {
		c.Cards = append([]Card(nil), u.Cards...)
	}
	if u.Friends != nil {
		c.Friends = append([]string(nil), u.Friends...)
	}
	if u.PendingFriends != nil {
		c.PendingFriends = append([]FriendRequest(nil), u.PendingFriends...)
	}
	if u.Trading != nil {
		c.Trading = append([]TradeOffer(nil), u.Trading...)
	}
	return c
}
