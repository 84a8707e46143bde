package models

import "time"

type User struct {
	ID        string    `json:"id" bson:"_id"`
	Username  string    `json:"username" bson:"username"`
	Email     string    `json:"email" bson:"email"`
	Plan      string    `json:"plan" bson:"plan"`
	CreatedAt time.Time `json:"createdAt" bson:"created_at"`
}
