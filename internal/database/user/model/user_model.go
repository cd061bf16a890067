package model

import "time"

type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// GM users may change table, tier, modifiers, roll and reset the session
	GM           bool      `json:"gm"`
	ChatID       int64     `json:"chatId,omitempty"`
	LanguageCode string    `json:"languageCode,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}
