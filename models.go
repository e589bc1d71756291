package cocgw

import (
	"time"

	"github.com/clashkit/cocgw/paging"
)

// APITimeLayout is the timestamp format used by the game API,
// e.g. "20240115T083000.000Z".
const APITimeLayout = "20060102T150405.000Z"

// ParseTime parses a game API timestamp.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(APITimeLayout, s)
}

// IconURLs holds the icon variants the API returns for badges and leagues.
type IconURLs struct {
	Tiny   string `json:"tiny,omitempty"`
	Small  string `json:"small,omitempty"`
	Medium string `json:"medium,omitempty"`
	Large  string `json:"large,omitempty"`
}

// Location is a country or region.
type Location struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	IsCountry   bool   `json:"isCountry"`
	CountryCode string `json:"countryCode,omitempty"`
}

// Label is a clan or player label.
type Label struct {
	ID       int      `json:"id"`
	Name     string   `json:"name"`
	IconURLs IconURLs `json:"iconUrls"`
}

// League is a trophy league.
type League struct {
	ID       int      `json:"id"`
	Name     string   `json:"name"`
	IconURLs IconURLs `json:"iconUrls"`
}

// WarLeague is a clan war league.
type WarLeague struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// ChatLanguage is a clan's declared chat language.
type ChatLanguage struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	LanguageCode string `json:"languageCode"`
}

// Clan is the /clans/{tag} resource.
type Clan struct {
	Tag                    string        `json:"tag"`
	Name                   string        `json:"name"`
	Type                   string        `json:"type"`
	Description            string        `json:"description"`
	Location               *Location     `json:"location,omitempty"`
	BadgeURLs              IconURLs      `json:"badgeUrls"`
	ClanLevel              int           `json:"clanLevel"`
	ClanPoints             int           `json:"clanPoints"`
	ClanVersusPoints       int           `json:"clanVersusPoints"`
	RequiredTrophies       int           `json:"requiredTrophies"`
	RequiredVersusTrophies int           `json:"requiredVersusTrophies"`
	RequiredTownhallLevel  int           `json:"requiredTownhallLevel"`
	WarFrequency           string        `json:"warFrequency"`
	WarWinStreak           int           `json:"warWinStreak"`
	WarWins                int           `json:"warWins"`
	IsWarLogPublic         bool          `json:"isWarLogPublic"`
	WarLeague              *WarLeague    `json:"warLeague,omitempty"`
	Members                int           `json:"members"`
	MemberList             []ClanMember  `json:"memberList"`
	Labels                 []Label       `json:"labels"`
	ChatLanguage           *ChatLanguage `json:"chatLanguage,omitempty"`
}

// ClanMember is one entry of a clan's member list.
type ClanMember struct {
	Tag               string  `json:"tag"`
	Name              string  `json:"name"`
	Role              string  `json:"role"`
	ExpLevel          int     `json:"expLevel"`
	League            *League `json:"league,omitempty"`
	Trophies          int     `json:"trophies"`
	VersusTrophies    int     `json:"versusTrophies"`
	ClanRank          int     `json:"clanRank"`
	PreviousClanRank  int     `json:"previousClanRank"`
	Donations         int     `json:"donations"`
	DonationsReceived int     `json:"donationsReceived"`
}

// MemberList is a page of /clans/{tag}/members.
type MemberList struct {
	Items  []ClanMember  `json:"items"`
	Paging paging.Paging `json:"paging"`
}

// War is the /clans/{tag}/currentwar resource.
type War struct {
	State                string  `json:"state"`
	TeamSize             int     `json:"teamSize"`
	AttacksPerMember     int     `json:"attacksPerMember"`
	PreparationStartTime string  `json:"preparationStartTime"`
	StartTime            string  `json:"startTime"`
	EndTime              string  `json:"endTime"`
	Clan                 WarClan `json:"clan"`
	Opponent             WarClan `json:"opponent"`
}

// WarClan is one side of a war.
type WarClan struct {
	Tag                   string      `json:"tag"`
	Name                  string      `json:"name"`
	BadgeURLs             IconURLs    `json:"badgeUrls"`
	ClanLevel             int         `json:"clanLevel"`
	Attacks               int         `json:"attacks"`
	Stars                 int         `json:"stars"`
	DestructionPercentage float64     `json:"destructionPercentage"`
	Members               []WarMember `json:"members"`
}

// WarMember is a participant of a war.
type WarMember struct {
	Tag                string   `json:"tag"`
	Name               string   `json:"name"`
	TownhallLevel      int      `json:"townhallLevel"`
	MapPosition        int      `json:"mapPosition"`
	Attacks            []Attack `json:"attacks,omitempty"`
	OpponentAttacks    int      `json:"opponentAttacks"`
	BestOpponentAttack *Attack  `json:"bestOpponentAttack,omitempty"`
}

// Attack is one war attack.
type Attack struct {
	AttackerTag           string  `json:"attackerTag"`
	DefenderTag           string  `json:"defenderTag"`
	Stars                 int     `json:"stars"`
	DestructionPercentage float64 `json:"destructionPercentage"`
	Order                 int     `json:"order"`
	Duration              int     `json:"duration"`
}

// PlayerClan is the clan summary embedded in a player.
type PlayerClan struct {
	Tag       string   `json:"tag"`
	Name      string   `json:"name"`
	ClanLevel int      `json:"clanLevel"`
	BadgeURLs IconURLs `json:"badgeUrls"`
}

// Troop is a troop, spell or hero level entry.
type Troop struct {
	Name     string `json:"name"`
	Level    int    `json:"level"`
	MaxLevel int    `json:"maxLevel"`
	Village  string `json:"village"`
}

// Achievement is a player achievement.
type Achievement struct {
	Name           string `json:"name"`
	Stars          int    `json:"stars"`
	Value          int    `json:"value"`
	Target         int    `json:"target"`
	Info           string `json:"info"`
	CompletionInfo string `json:"completionInfo,omitempty"`
	Village        string `json:"village"`
}

// Player is the /players/{tag} resource.
type Player struct {
	Tag                 string        `json:"tag"`
	Name                string        `json:"name"`
	TownHallLevel       int           `json:"townHallLevel"`
	TownHallWeaponLevel int           `json:"townHallWeaponLevel,omitempty"`
	ExpLevel            int           `json:"expLevel"`
	Trophies            int           `json:"trophies"`
	BestTrophies        int           `json:"bestTrophies"`
	WarStars            int           `json:"warStars"`
	AttackWins          int           `json:"attackWins"`
	DefenseWins         int           `json:"defenseWins"`
	BuilderHallLevel    int           `json:"builderHallLevel,omitempty"`
	VersusTrophies      int           `json:"versusTrophies,omitempty"`
	BestVersusTrophies  int           `json:"bestVersusTrophies,omitempty"`
	VersusBattleWins    int           `json:"versusBattleWins,omitempty"`
	Role                string        `json:"role,omitempty"`
	WarPreference       string        `json:"warPreference,omitempty"`
	Donations           int           `json:"donations"`
	DonationsReceived   int           `json:"donationsReceived"`
	Clan                *PlayerClan   `json:"clan,omitempty"`
	League              *League       `json:"league,omitempty"`
	Achievements        []Achievement `json:"achievements,omitempty"`
	Labels              []Label       `json:"labels,omitempty"`
	Troops              []Troop       `json:"troops,omitempty"`
	Heroes              []Troop       `json:"heroes,omitempty"`
	Spells              []Troop       `json:"spells,omitempty"`
}

// PlayerToken is the answer of /players/{tag}/verifytoken.
type PlayerToken struct {
	Tag    string `json:"tag"`
	Token  string `json:"token"`
	Status string `json:"status"`
}

// Verified reports whether the token belongs to the player.
func (p PlayerToken) Verified() bool {
	return p.Status == "ok"
}

// GoldPassSeason is the /goldpass/seasons/current resource.
type GoldPassSeason struct {
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}
