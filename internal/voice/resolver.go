package voice

import (
	"github.com/bwmarrin/discordgo"
)

// DiscordResolver resolves display names from the session state cache for
// one guild, falling back to a REST lookup.
type DiscordResolver struct {
	Session *discordgo.Session
	GuildID string
}

func NewDiscordResolver(s *discordgo.Session, guildID string) *DiscordResolver {
	return &DiscordResolver{Session: s, GuildID: guildID}
}

// UserName prefers the member's guild nickname, then username, then a REST
// user lookup. Returns "" when nothing resolves.
func (r *DiscordResolver) UserName(userID string) string {
	if r == nil || r.Session == nil || userID == "" {
		return ""
	}
	if r.Session.State != nil {
		if m, err := r.Session.State.Member(r.GuildID, userID); err == nil && m != nil {
			if m.Nick != "" {
				return m.Nick
			}
			if m.User != nil && m.User.Username != "" {
				return m.User.Username
			}
		}
	}
	if u, err := r.Session.User(userID); err == nil && u != nil {
		return u.Username
	}
	return ""
}
