package entity

// User represents a human user known to the identity provider
type User struct {
	Id        string `json:"id" gorm:"column:id;primaryKey" bson:"_id"`
	Nickname  string `json:"nickname" gorm:"column:nickname" bson:"nickname"`
	Avatar    string `json:"avatar" gorm:"column:avatar" bson:"avatar"`
	CreatedAt int64  `json:"created_at" gorm:"column:created_at;autoCreateTime:milli" bson:"created_at"`
	UpdatedAt int64  `json:"updated_at" gorm:"column:updated_at;autoUpdateTime:milli" bson:"updated_at"`
}

// TableName returns the table name for User
func (User) TableName() string {
	return "users"
}

// UserInfo is the display identity of a participant
type UserInfo struct {
	Id          string `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarUrl   string `json:"avatar_url"`
	IsAI        bool   `json:"is_ai"`
}

// ToUserInfo converts User to UserInfo
func (u *User) ToUserInfo() *UserInfo {
	return &UserInfo{
		Id:          u.Id,
		DisplayName: u.Nickname,
		AvatarUrl:   u.Avatar,
	}
}
