package bot

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"terra-eye/internal/models"
	"terra-eye/internal/services"
)

// CameraLister loads the registered cameras
type CameraLister interface {
	List(ctx context.Context) ([]models.Camera, error)
}

// RosterSource loads employees with today's attendance status
type RosterSource interface {
	Roster(ctx context.Context) ([]services.EmployeeWithStatus, []models.AttendanceLog, error)
}

// StatsSource loads the dashboard counters
type StatsSource interface {
	Stats(ctx context.Context) (models.DashboardStats, error)
}

// Options wires the bot to the dashboard services
type Options struct {
	Token string
	// AuthorizedChatID is the only chat allowed to query cameras and
	// attendance. Left empty, only /start, /help and /getid answer.
	AuthorizedChatID string
	Cameras          CameraLister
	Roster           RosterSource
	Stats            StatsSource

	// APIEndpoint and HTTPClient override the Telegram API, mainly for tests
	APIEndpoint string
	HTTPClient  *http.Client
}

// Bot answers operator commands and relays safety alerts to the admin chat
type Bot struct {
	api          *tgbotapi.BotAPI
	targetChatID int64
	cameras      CameraLister
	roster       RosterSource
	stats        StatsSource
}

// New initializes the Telegram Bot
func New(opts Options) (*Bot, error) {
	endpoint := opts.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 70 * time.Second}
	}

	api, err := tgbotapi.NewBotAPIWithClient(opts.Token, endpoint, client)
	if err != nil {
		return nil, err
	}
	api.Debug = false
	log.Printf("🤖 Authorized on account %s", api.Self.UserName)

	b := &Bot{api: api, cameras: opts.Cameras, roster: opts.Roster, stats: opts.Stats}
	if opts.AuthorizedChatID != "" {
		id, err := strconv.ParseInt(opts.AuthorizedChatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid AUTHORIZED_CHAT_ID %q: %w", opts.AuthorizedChatID, err)
		}
		b.targetChatID = id
	} else {
		log.Warn("⚠️ AUTHORIZED_CHAT_ID not set, data commands are disabled")
	}
	return b, nil
}

// Run polls for updates until ctx is cancelled
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.CallbackQuery != nil {
				if _, err := b.api.Request(tgbotapi.NewCallback(update.CallbackQuery.ID, "OK")); err != nil {
					log.Printf("Bot callback error: %v", err)
				}
				continue
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}

			msg := tgbotapi.NewMessage(update.Message.Chat.ID, b.Reply(ctx, update.Message.Chat.ID, update.Message.Command()))
			msg.ParseMode = tgbotapi.ModeMarkdown
			if _, err := b.api.Send(msg); err != nil {
				log.Printf("Bot send error: %v", err)
			}
		}
	}
}

// Reply builds the answer to a command sent from chatID
func (b *Bot) Reply(ctx context.Context, chatID int64, command string) string {
	switch command {
	case "start", "help":
		return "🎥 *Terra Eye*\n\n" +
			"*Commands:*\n" +
			"/cameras - connected cameras\n" +
			"/today - today's attendance\n" +
			"/stats - dashboard counters\n" +
			"/getid - this chat's id"
	case "getid":
		return fmt.Sprintf("Chat ID: `%d`", chatID)
	}

	if b.targetChatID == 0 || chatID != b.targetChatID {
		return "⛔ This chat is not authorized"
	}

	switch command {
	case "cameras":
		return b.camerasText(ctx)
	case "today":
		return b.todayText(ctx)
	case "stats":
		return b.statsText(ctx)
	default:
		return "Unknown command, use /help"
	}
}

func (b *Bot) camerasText(ctx context.Context) string {
	cameras, err := b.cameras.List(ctx)
	if err != nil {
		log.Printf("❌ Error fetching cameras for bot: %v", err)
		return "❌ Failed to fetch cameras"
	}
	if len(cameras) == 0 {
		return "No cameras found"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📷 *Cameras* (%d)\n", len(cameras))
	for _, c := range cameras {
		fmt.Fprintf(&sb, "- %s", escape(c.Name))
		if c.Location != "" {
			fmt.Fprintf(&sb, " (%s)", escape(c.Location))
		}
		if c.Status != "" {
			fmt.Fprintf(&sb, " `%s`", c.Status)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (b *Bot) todayText(ctx context.Context) string {
	roster, _, err := b.roster.Roster(ctx)
	if err != nil {
		log.Printf("❌ Error fetching attendance for bot: %v", err)
		return "❌ Failed to fetch employees"
	}
	if len(roster) == 0 {
		return "No employees registered"
	}

	groups := map[models.AttendanceStatus][]string{}
	for _, e := range roster {
		groups[e.Status] = append(groups[e.Status], escape(e.Name))
	}

	var sb strings.Builder
	sb.WriteString("📊 *Today*\n")
	for _, st := range []models.AttendanceStatus{models.StatusPresent, models.StatusCheckedOut, models.StatusAbsent} {
		names := groups[st]
		fmt.Fprintf(&sb, "%s: %d", st, len(names))
		if len(names) > 0 && st != models.StatusAbsent {
			fmt.Fprintf(&sb, " (%s)", strings.Join(names, ", "))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (b *Bot) statsText(ctx context.Context) string {
	s, err := b.stats.Stats(ctx)
	if err != nil {
		log.Printf("❌ Error fetching stats for bot: %v", err)
		return "❌ Failed to fetch dashboard stats"
	}
	return fmt.Sprintf("📈 *Dashboard*\nCameras: %d\nEmployees: %d\nAttendance logs: %d\nChecked in today: %d",
		s.TotalCameras, s.TotalEmployees, s.TotalLogs, s.ActiveToday)
}

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}
