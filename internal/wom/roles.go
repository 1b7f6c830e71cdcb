package wom

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalidRole is returned for a name outside the WOM group role list
var ErrInvalidRole = errors.New("not a valid Wise Old Man group role")

// Role is a WOM group membership role (a clan rank)
type Role string

// roles is the closed set of group roles WOM reports in memberships
var roles = map[Role]struct{}{}

func init() {
	for _, name := range []string{
		"achiever", "adamant", "adept", "administrator", "admiral", "adventurer", "air", "anchor",
		"apothecary", "archer", "armadylean", "artillery", "artisan", "asgarnian", "assassin",
		"assistant", "astral", "athlete", "attacker", "bandit", "bandosian", "barbarian", "battlemage",
		"beast", "berserker", "blisterwood", "blood", "blue", "bob", "body", "brassican", "brawler",
		"brigadier", "brigand", "bronze", "bruiser", "bulwark", "burglar", "burnt", "cadet", "captain",
		"carry", "champion", "chaos", "cleric", "collector", "colonel", "commander", "competitor",
		"completionist", "constructor", "cook", "coordinator", "corporal", "cosmic", "councillor",
		"crafter", "crew", "crusader", "cutpurse", "death", "defender", "defiler", "deputy_owner",
		"destroyer", "diamond", "diseased", "doctor", "dogsbody", "dragon", "dragonstone", "druid",
		"duellist", "earth", "elite", "emerald", "enforcer", "epic", "executive", "expert", "explorer",
		"farmer", "feeder", "fighter", "fire", "firemaker", "firestarter", "fisher", "fletcher",
		"forager", "fremennik", "gamer", "gatherer", "general", "gnome_child", "gnome_elder", "goblin",
		"gold", "goon", "green", "grey", "guardian", "guthixian", "harpoon", "healer", "hellcat",
		"helper", "herbologist", "hero", "hoarder", "holy", "hunter", "ignitor", "illusionist", "imp",
		"infantry", "inquisitor", "iron", "jade", "justiciar", "kandarin", "karamjan", "kharidian",
		"kitten", "knight", "labourer", "law", "leader", "learner", "legacy", "legend", "legionnaire",
		"lieutenant", "looter", "lumberjack", "magic", "magician", "major", "maple", "marshal", "master",
		"maxed", "mediator", "medic", "member", "mentor", "merchant", "mind", "miner", "minion",
		"misthalinian", "mithril", "moderator", "monarch", "morytanian", "mystic", "myth", "natural",
		"nature", "necromancer", "ninja", "noble", "novice", "nurse", "oak", "officer", "onyx", "opal",
		"oracle", "orange", "owner", "page", "paladin", "pawn", "pilgrim", "pine", "pink", "prefect",
		"priest", "private", "prodigy", "proselyte", "prospector", "protector", "pure", "purple",
		"pyromancer", "quester", "racer", "raider", "ranger", "record_chaser", "recruit", "recruiter",
		"red", "red_topaz", "rogue", "ruby", "rune", "runecrafter", "sage", "sapphire", "saradominist",
		"saviour", "scavenger", "scholar", "scourge", "scout", "scribe", "seer", "senator", "sentry",
		"serenist", "sergeant", "shaman", "sheriff", "short_green_guy", "skiller", "skulled", "slayer",
		"smiter", "smith", "smuggler", "sniper", "soul", "specialist", "speed_runner", "spellcaster",
		"squire", "staff", "steel", "strider", "striker", "summoner", "superior", "supervisor", "teacher",
		"templar", "therapist", "thief", "tirannian", "trialist", "trickster", "tzkal", "tztok", "unholy",
		"vagrant", "vanguard", "walker", "wanderer", "warden", "warlock", "warrior", "water", "wild",
		"willow", "wily", "wintumber", "witch", "wizard", "worker", "wrath", "xerician", "yellow", "yew",
		"zamorakian", "zarosian", "zealot", "zenyte",
	} {
		roles[Role(name)] = struct{}{}
	}
}

// ParseRole validates and normalizes a role name. It is used when a role
// mapping is created; memberships returned by WOM are not re-validated.
func ParseRole(name string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := roles[role]; !ok {
		return "", fmt.Errorf("%q: %w", name, ErrInvalidRole)
	}
	return role, nil
}

// Roles returns every known role name in alphabetical order
func Roles() []Role {
	out := make([]Role, 0, len(roles))
	for r := range roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
