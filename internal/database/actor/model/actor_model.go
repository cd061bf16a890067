package model

import (
	"math"
	"time"
)

const (
	CopperPerSilver = 10
	CopperPerGold   = 100

	// MaxGold bounds every gold amount and each coin pile so a purse converted to copper never
	// overflows int.
	MaxGold = math.MaxInt / (4 * CopperPerGold)
)

type Coins struct {
	GP int `json:"gp"`
	SP int `json:"sp"`
	CP int `json:"cp"`
}

// Copper is the whole purse expressed in copper pieces.
func (c Coins) Copper() int {
	return c.GP*CopperPerGold + c.SP*CopperPerSilver + c.CP
}

// Valid reports whether every pile is non-negative and within MaxGold.
func (c Coins) Valid() bool {
	return validAmount(c.GP) && validAmount(c.SP) && validAmount(c.CP)
}

func validAmount(n int) bool {
	return n >= 0 && n <= MaxGold
}

func CoinsFromCopper(cp int) Coins {
	if cp < 0 {
		cp = 0
	}

	return Coins{
		GP: cp / CopperPerGold,
		SP: cp % CopperPerGold / CopperPerSilver,
		CP: cp % CopperPerSilver,
	}
}

// Actor is a player-controlled character document.
type Actor struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Name      string    `json:"name"`
	Coins     Coins     `json:"coins"`
	Renown    int       `json:"renown"`
	XP        int       `json:"xp"`
	UpdatedAt time.Time `json:"updatedAt"`
}
