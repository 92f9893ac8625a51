package models

import "time"

type User struct {
	ID               int64
	Username         string
	Email            string
	FullName         string
	PassHash         []byte
	AvatarURL        string
	CoverImageURL    string
	RefreshTokenHash []byte
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// PublicUser is the client-facing view of a user. It never carries the
// password hash or the stored refresh token.
type PublicUser struct {
	ID            int64     `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	FullName      string    `json:"fullName"`
	AvatarURL     string    `json:"avatar"`
	CoverImageURL string    `json:"coverImage,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

func (u User) Public() PublicUser {
	return PublicUser{
		ID:            u.ID,
		Username:      u.Username,
		Email:         u.Email,
		FullName:      u.FullName,
		AvatarURL:     u.AvatarURL,
		CoverImageURL: u.CoverImageURL,
		CreatedAt:     u.CreatedAt,
	}
}

// ChannelProfile is the aggregated channel view: the channel owner's public
// data plus subscription counters relative to the viewer.
type ChannelProfile struct {
	PublicUser
	SubscriberCount   int64 `json:"subscriberCount"`
	SubscribedToCount int64 `json:"subscribedToCount"`
	IsSubscribed      bool  `json:"isSubscribed"`
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Message is the event published to the broker after a successful
// registration.
type Message struct {
	Email    string `json:"to"`
	Username string `json:"username"`
	Purpose  string `json:"purpose"`
}
