package model

const (
	DefaultTableID         = "default"
	DefaultExpandedTableID = "default-expanded"
)

var defaultTiers = []Tier{
	{Cost: 100, Bonus: 0, Description: "A few rounds at the local tavern"},
	{Cost: 300, Bonus: 1, Description: "A boisterous night in the market district"},
	{Cost: 600, Bonus: 2, Description: "A noble's garden party"},
	{Cost: 1000, Bonus: 3, Description: "A week-long festival of excess"},
	{Cost: 3000, Bonus: 4, Description: "A legendary revel sung about for years"},
}

// DefaultTable is the read-only table offered in custom mode.
func DefaultTable() Table {
	return Table{
		ID:      DefaultTableID,
		Name:    "Default",
		Die:     DefaultDie,
		BuiltIn: true,
		Tiers:   append([]Tier(nil), defaultTiers...),
		Outcomes: []Outcome{
			{Roll: "1", Description: "You wake in a ditch, purse slashed", Benefit: "None, but a lesson learned"},
			{Roll: "2", Description: "You insult the wrong person", Benefit: "A rival who remembers your face", XP: 1},
			{Roll: "3", Description: "A blur of songs and spilled ale", Benefit: "A hangover and a good story", XP: 1},
			{Roll: "4", Description: "You win a drinking contest", Benefit: "The regulars buy your next round", XP: 2},
			{Roll: "5", Description: "You charm a traveling merchant", Benefit: "A contact who trades rare goods", XP: 2},
			{Roll: "6", Description: "A local official owes you a favor", Benefit: "One favor from the town guard", XP: 3},
			{Roll: "7", Description: "You stumble onto a treasure rumor", Benefit: "A map fragment to a nearby ruin", XP: 4},
			{Roll: "8+", Description: "The whole town toasts your name", Benefit: "A patron offers steady work", Gold: 20, XP: 5},
		},
	}
}

// DefaultExpandedTable is the read-only table offered in expanded mode.
func DefaultExpandedTable() ExpandedTable {
	return ExpandedTable{
		ID:      DefaultExpandedTableID,
		Name:    "Default (expanded)",
		Die:     DefaultDie,
		BuiltIn: true,
		Tiers:   append([]Tier(nil), defaultTiers...),
		Outcomes: []Recipe{
			{Roll: "1", Mishaps: 2, Benefits: 0, Modifier: -10, XP: 0},
			{Roll: "2", Mishaps: 1, Benefits: 0, Modifier: 0, XP: 1},
			{Roll: "3", Mishaps: 1, Benefits: 1, Modifier: 0, XP: 1},
			{Roll: "4", Mishaps: 1, Benefits: 1, Modifier: 0, XP: 2},
			{Roll: "5", Mishaps: 0, Benefits: 1, Modifier: 0, XP: 2},
			{Roll: "6", Mishaps: 0, Benefits: 1, Modifier: 10, XP: 3},
			{Roll: "7", Mishaps: 1, Benefits: 2, Modifier: 20, XP: 4},
			{Roll: "8+", Mishaps: 0, Benefits: 2, Modifier: 30, XP: 5},
		},
		Benefits: []Entry{
			{Roll: "1", Description: "A barkeep will always save you a seat"},
			{Roll: "2", Description: "You learn a rumor about a nearby dungeon"},
			{Roll: "3", Description: "A minor noble invites you to dinner"},
			{Roll: "4", Description: "You befriend a hireling who works for half pay"},
			{Roll: "5", Description: "A priest blesses you: luck token"},
			{Roll: "6", Description: "You win a mule in a card game"},
			{Roll: "7", Description: "A sage offers one free identification"},
			{Roll: "8", Description: "A thieves' guild contact owes you"},
			{Roll: "9", Description: "A bard writes a song about you: +1 renown"},
			{Roll: "10", Description: "A wealthy patron funds your next expedition"},
		},
		Mishaps: []Entry{
			{Roll: "1", Description: "You wake up married"},
			{Roll: "2", Description: "You are jailed overnight for brawling"},
			{Roll: "3", Description: "A pickpocket lifts a random item"},
			{Roll: "4", Description: "You gamble away your spare weapon"},
			{Roll: "5", Description: "You start a feud with a local family"},
			{Roll: "6", Description: "You catch a lingering fever"},
			{Roll: "7", Description: "You sign a contract you cannot remember"},
			{Roll: "8", Description: "Your tab is sent to your patron"},
			{Roll: "9", Description: "You lose your boots"},
			{Roll: "10", Description: "A tattoo you did not choose"},
		},
	}
}
