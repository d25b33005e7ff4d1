package command

import "github.com/zephyrtronium/cytubebot/room"

// Limit families.
const (
	LimitCookie = "cookie"
	LimitRaffle = "raffle"
	LimitFun    = "fun"
	LimitAdd    = "add"
	LimitRandom = "random"
)

// Table returns the full command table.
func Table() map[string]*Command {
	cmds := []*Command{
		{Name: "help", Func: Help, Usage: ""},
		{Name: "add", Func: Add, Usage: "<link> [next]", Rank: room.Moderator, Letter: 'A', Limit: LimitAdd},
		{Name: "addrandom", Func: AddRandom, Usage: "[count]", Rank: room.Moderator, Letter: 'R', Limit: LimitRandom},
		{Name: "delete", Func: Delete, Usage: "<user> [count|all]", Rank: room.Moderator, Letter: 'D'},
		{Name: "purge", Func: Purge, Usage: "<user>", Rank: room.Moderator, Letter: 'D'},
		{Name: "duplicates", Func: Duplicates, Rank: room.Moderator, Letter: 'D'},
		{Name: "blockvideo", Func: BlockVideo, Usage: "[link]", Rank: room.Moderator, Letter: 'B'},
		{Name: "unblockvideo", Func: UnblockVideo, Usage: "[link]", Rank: room.Moderator, Letter: 'B'},
		{Name: "blockuser", Func: BlockUser, Usage: "<user>", Rank: room.Moderator, Letter: 'B'},
		{Name: "unblockuser", Func: UnblockUser, Usage: "<user>", Rank: room.Moderator, Letter: 'B'},
		{Name: "blacklistuser", Func: BlacklistUser, Usage: "<user>", Rank: room.Admin, Letter: 'K'},
		{Name: "unblacklistuser", Func: UnblacklistUser, Usage: "<user>", Rank: room.Admin, Letter: 'K'},
		{Name: "kick", Func: Kick, Usage: "<user> [reason]", Rank: room.Moderator, Letter: 'E'},
		{Name: "ban", Func: Ban, Usage: "<user> [reason]", Rank: room.Moderator, Letter: 'E'},
		{Name: "unban", Func: Unban, Usage: "<user>", Rank: room.Moderator, Letter: 'E', NoBridge: true},
		{Name: "permissions", Func: Permissions, Usage: "<user> [ALL|NONE|+letters|-letters]", Rank: room.Owner, NoBridge: true},
		{Name: "management", Func: Management, Usage: "[on|off]", Rank: room.Moderator, Letter: 'G'},
		{Name: "userlimit", Func: UserLimit, Usage: "[on|off|count]", Rank: room.Moderator, Letter: 'G'},
		{Name: "mute", Func: Mute, Rank: room.Moderator, Letter: 'M'},
		{Name: "unmute", Func: Unmute, Rank: room.Moderator, Letter: 'M'},
		{Name: "shuffle", Func: Shuffle, Rank: room.Moderator, Letter: 'U'},
		{Name: "bump", Func: Bump, Usage: "<user> [count|all]", Rank: room.Moderator, Letter: 'U'},
		{Name: "skip", Func: Skip, Rank: room.Moderator, Letter: 'S'},
		{Name: "poll", Func: Poll, Usage: "<title>.<option>.<option>[.true]", Rank: room.Moderator, Letter: 'P'},
		{Name: "endpoll", Func: EndPoll, Rank: room.Moderator, Letter: 'P'},
		{Name: "clearchat", Func: ClearChat, Rank: room.Moderator, Letter: 'C'},
		{Name: "status", Func: Status},
		{Name: "processinfo", Func: ProcessInfo},
		{Name: "stats", Func: Stats, Usage: "[user]", Limit: LimitFun},
		{Name: "currenttime", Func: CurrentTime},
		{Name: "ask", Func: Ask, Usage: "<question>", Limit: LimitFun},
		{Name: "choose", Func: Choose, Usage: "<option> <option>...", Limit: LimitFun},
		{Name: "cookie", Func: Cookie, Usage: "[user]", Limit: LimitCookie},
		{Name: "raffle", Func: StartRaffle, Usage: "[seconds]", Limit: LimitRaffle},
		{Name: "enter", Func: Enter},
	}
	m := make(map[string]*Command, len(cmds))
	for _, c := range cmds {
		m[c.Name] = c
	}
	return m
}
