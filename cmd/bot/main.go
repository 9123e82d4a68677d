package main

import (
	"context"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/ember-voice-lab/internal/config"
	"github.com/ember-voice-lab/internal/logging"
	"github.com/ember-voice-lab/internal/memory"
	"github.com/ember-voice-lab/internal/stt"
	"github.com/ember-voice-lab/internal/tts"
	"github.com/ember-voice-lab/internal/voice"
	"github.com/ember-voice-lab/llm"
)

type bot struct {
	cfg      *config.Config
	dg       *discordgo.Session
	registry *voice.Registry
	brain    *voice.Brain
	stt      *stt.Client
	tts      *tts.Client
	archive  *voice.Archiver
}

func main() {
	sugar := logging.Init()

	cfg, err := config.Load()
	if err != nil {
		sugar.Fatalw("config load failed", "err", err)
	}

	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		sugar.Fatalw("discordgo.New failed", "err", err)
	}
	// MessageContent is privileged; needed for the mention-to-talk path.
	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent |
		discordgo.IntentsGuildVoiceStates

	memStore, err := memory.NewStore(cfg.MemoryDir, cfg.MemoryMaxTurns)
	if err != nil {
		sugar.Fatalw("memory store init failed", "err", err)
	}

	b := &bot{
		cfg:      cfg,
		dg:       dg,
		registry: voice.NewRegistry(),
		brain:    &voice.Brain{LLM: llm.NewClient(cfg.OllamaURL, cfg.OllamaModel), Memory: memStore},
		stt:      stt.NewClient(cfg.WhisperBin, cfg.WhisperModel),
		tts:      tts.NewClient(cfg.PiperBin, cfg.PiperModel, cfg.PiperSpeakRate),
		archive:  voice.NewArchiver(cfg.SaveAudioDir),
	}

	dg.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		logging.Infow("logged in", "user", r.User.Username,
			"ollama", cfg.OllamaURL, "ollama_model", cfg.OllamaModel,
			"whisper", cfg.WhisperBin, "piper", cfg.PiperBin,
			"memory_dir", cfg.MemoryDir)
	})
	dg.AddHandler(b.handleInteraction)
	dg.AddHandler(b.handleMessage)

	if err := dg.Open(); err != nil {
		sugar.Fatalw("discord session open failed", "err", err)
	}
	defer dg.Close()

	b.registerCommands()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logging.Infow("shutting down, saving recaps")
	b.shutdown()
	_ = logging.Sync()
}

func (b *bot) registerCommands() {
	minCount := float64(1)
	cmds := []*discordgo.ApplicationCommand{
		{Name: "join", Description: "Join your current voice channel"},
		{Name: "leave", Description: "Leave the voice channel (and save recap)"},
		{
			Name:        "goodnight",
			Description: "Say goodnight in multiple languages (and speak in VC if connected).",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "count",
					Description: "How many languages (1-8). Default: 4",
					MinValue:    &minCount,
					MaxValue:    8,
				},
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "english",
					Description: "Include English. Default: true",
				},
			},
		},
	}
	// DISCORD_GUILD_ID scopes registration to one guild; global commands
	// can take up to an hour to appear.
	guildID := strings.TrimSpace(os.Getenv("DISCORD_GUILD_ID"))
	for _, c := range cmds {
		if _, err := b.dg.ApplicationCommandCreate(b.dg.State.User.ID, guildID, c); err != nil {
			logging.Warnw("command registration failed", "command", c.Name, "err", err)
		}
	}
}

func (b *bot) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	if i.GuildID == "" {
		respond(s, i, "Use me in a server.", true)
		return
	}
	switch i.ApplicationCommandData().Name {
	case "join":
		b.handleJoin(s, i)
	case "leave":
		b.handleLeave(s, i)
	case "goodnight":
		b.handleGoodnight(s, i)
	}
}

func (b *bot) handleJoin(s *discordgo.Session, i *discordgo.InteractionCreate) {
	channelID := b.memberVoiceChannel(i.GuildID, i.Member.User.ID)
	if channelID == "" {
		respond(s, i, "Join a voice channel first.", true)
		return
	}
	vc, err := s.ChannelVoiceJoin(i.GuildID, channelID, false, false)
	if err != nil {
		logging.Errorw("voice join failed", "guild_id", i.GuildID, "channel_id", channelID, "err", err)
		respond(s, i, "Couldn't join that channel.", true)
		return
	}

	sess := b.registry.GetOrCreate(i.GuildID, func() *voice.Session {
		sc := voice.SessionConfig{
			GuildID:      i.GuildID,
			BotUserID:    s.State.User.ID,
			Silence:      time.Duration(b.cfg.SilenceMS) * time.Millisecond,
			MinUtterance: time.Duration(b.cfg.MinUtteranceMS) * time.Millisecond,
			Cooldown:     time.Duration(b.cfg.CooldownMS) * time.Millisecond,
		}
		sess := voice.NewSession(sc, voice.Dependencies{
			Synth:      b.tts,
			Player:     &voice.DiscordPlayer{VC: vc},
			STT:        b.stt,
			Respond:    b.brain,
			Resolver:   voice.NewDiscordResolver(s, i.GuildID),
			Archive:    b.archive,
			STTTimeout: b.cfg.STTTimeout,
			GenTimeout: b.cfg.GenTimeout,
			TTSTimeout: b.cfg.TTSTimeout,
		})
		sess.BindTransport(voice.NewReceiver(vc, sc.Silence, sess.HandleSpeakingStart))
		return sess
	})

	// Greet with the last call's recap when we have one.
	if greet := b.brain.Greeting(i.GuildID); greet != "" {
		sess.Announce(greet)
	}

	name := channelID
	if ch, err := s.State.Channel(channelID); err == nil && ch != nil {
		name = ch.Name
	}
	respond(s, i, "🎤 Joined **"+name+"**. Talk in VC — I'm listening.", false)
}

func (b *bot) handleLeave(s *discordgo.Session, i *discordgo.InteractionCreate) {
	// Recap generation can outlive the 3s interaction window.
	_ = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	})

	if sess := b.registry.Remove(i.GuildID); sess != nil {
		if isNightWindow(time.Now()) {
			rng := rand.New(rand.NewSource(time.Now().UnixNano()))
			sess.Announce(voice.GoodnightMessage(rng, 4, true))
		}
		ctx, cancel := context.WithTimeout(context.Background(), b.cfg.GenTimeout)
		if err := b.brain.Recap(ctx, i.GuildID); err != nil {
			logging.Warnw("recap failed", "guild_id", i.GuildID, "err", err)
		}
		cancel()
		sess.Close(true)
	}
	if vc := b.dg.VoiceConnections[i.GuildID]; vc != nil {
		_ = vc.Disconnect()
	}

	msg := "👋 Left voice (and saved a recap)."
	_, _ = s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &msg})
}

func (b *bot) handleGoodnight(s *discordgo.Session, i *discordgo.InteractionCreate) {
	count := 4
	includeEnglish := true
	for _, opt := range i.ApplicationCommandData().Options {
		switch opt.Name {
		case "count":
			count = int(opt.IntValue())
		case "english":
			includeEnglish = opt.BoolValue()
		}
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	msg := voice.GoodnightMessage(rng, count, includeEnglish)
	respond(s, i, msg, false)
	if sess := b.registry.Get(i.GuildID); sess != nil {
		sess.Announce(msg)
	}
}

// handleMessage is the mention-to-talk path: ping the bot in text and it
// answers in text, and out loud when connected.
func (b *bot) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}
	me := s.State.User
	mentioned := false
	for _, u := range m.Mentions {
		if u.ID == me.ID {
			mentioned = true
			break
		}
	}
	if !mentioned {
		return
	}

	cleaned := strings.TrimSpace(strings.NewReplacer(
		"<@"+me.ID+">", "",
		"<@!"+me.ID+">", "",
	).Replace(m.Content))
	if cleaned == "" {
		_, _ = s.ChannelMessageSendReply(m.ChannelID, "Say something after you ping me 😈", m.Reference())
		return
	}
	if len(cleaned) > 500 {
		_, _ = s.ChannelMessageSendReply(m.ChannelID, "Too long. My brain is small.", m.Reference())
		return
	}

	_ = s.ChannelTyping(m.ChannelID)

	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.GenTimeout)
	reply, err := b.brain.Reply(ctx, m.GuildID, m.Author.ID, m.Author.Username, cleaned)
	cancel()
	if err != nil {
		logging.Warnw("mention reply failed", "guild_id", m.GuildID, "err", err)
		return
	}

	_, _ = s.ChannelMessageSendReply(m.ChannelID, reply, m.Reference())
	if sess := b.registry.Get(m.GuildID); sess != nil {
		sess.Announce(reply)
	}
}

func (b *bot) memberVoiceChannel(guildID, userID string) string {
	g, err := b.dg.State.Guild(guildID)
	if err != nil || g == nil {
		return ""
	}
	for _, vs := range g.VoiceStates {
		if vs.UserID == userID {
			return vs.ChannelID
		}
	}
	return ""
}

// shutdown saves a recap for every live session, best effort, then drops
// the voice connections.
func (b *bot) shutdown() {
	for guildID, sess := range b.registry.Drain() {
		ctx, cancel := context.WithTimeout(context.Background(), b.cfg.GenTimeout)
		if err := b.brain.Recap(ctx, guildID); err != nil {
			logging.Warnw("shutdown recap failed", "guild_id", guildID, "err", err)
		}
		cancel()
		sess.Close(false)
		if vc := b.dg.VoiceConnections[guildID]; vc != nil {
			_ = vc.Disconnect()
		}
	}
}

// isNightWindow reports whether it is goodnight o'clock in New York
// (21:00 through 04:59).
func isNightWindow(now time.Time) bool {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return false
	}
	h := now.In(loc).Hour()
	return h >= 21 || h <= 4
}

func respond(s *discordgo.Session, i *discordgo.InteractionCreate, content string, ephemeral bool) {
	data := &discordgo.InteractionResponseData{Content: content}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	_ = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
}
