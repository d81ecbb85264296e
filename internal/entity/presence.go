package entity

// Presence is the online state of one user. Writes are last-write-wins.
type Presence struct {
	UserId   string `json:"uid" bson:"_id"`
	IsOnline bool   `json:"is_online" bson:"is_online"`
	LastSeen int64  `json:"last_seen" bson:"last_seen"`
}
