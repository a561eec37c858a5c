package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"olxmonitor/internal/ports"
)

// AdminBot long-polls getUpdates and serves the operator commands that
// manage the watchlist and inspect the store. It runs beside the scan
// loop; any failure is logged and polling resumes.
type AdminBot struct {
	token     string
	baseURL   string
	client    *http.Client
	sender    ports.Sender
	watchlist ports.Watchlist
	store     ports.ListingStore
	adminIDs  map[string]struct{}
	logger    *slog.Logger

	offset int64
}

// NewAdminBot wires the command loop. baseURL is test-only; empty means
// the real API host.
func NewAdminBot(token, baseURL string, sender ports.Sender, watchlist ports.Watchlist, store ports.ListingStore, adminIDs []string, logger *slog.Logger) *AdminBot {
	if baseURL == "" {
		baseURL = apiBase
	}
	ids := make(map[string]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		ids[id] = struct{}{}
	}
	return &AdminBot{
		token:     token,
		baseURL:   baseURL,
		client:    &http.Client{Timeout: 40 * time.Second},
		sender:    sender,
		watchlist: watchlist,
		store:     store,
		adminIDs:  ids,
		logger:    logger,
	}
}

type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
		From struct {
			ID int64 `json:"id"`
		} `json:"from"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
}

// Run polls until the context is cancelled.
func (b *AdminBot) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		updates, err := b.poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.logger.Warn("admin poll failed", "error", err)
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		for _, u := range updates {
			b.offset = u.UpdateID + 1
			if u.Message == nil || u.Message.Text == "" {
				continue
			}
			b.handle(ctx, strconv.FormatInt(u.Message.Chat.ID, 10), strconv.FormatInt(u.Message.From.ID, 10), u.Message.Text)
		}
	}
}

func (b *AdminBot) poll(ctx context.Context) ([]update, error) {
	endpoint := fmt.Sprintf("%s/bot%s/getUpdates", b.baseURL, b.token)
	form := url.Values{}
	form.Set("timeout", "30")
	form.Set("offset", strconv.FormatInt(b.offset, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get updates: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get updates: %s", resp.Status)
	}

	var payload struct {
		OK     bool     `json:"ok"`
		Result []update `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode updates: %w", err)
	}
	if !payload.OK {
		return nil, fmt.Errorf("get updates: api returned not ok")
	}
	return payload.Result, nil
}

func (b *AdminBot) handle(ctx context.Context, chatID, userID, text string) {
	if _, ok := b.adminIDs[userID]; !ok {
		b.reply(ctx, chatID, "Access restricted to admins.")
		return
	}

	cmd, arg := splitCommand(text)
	switch cmd {
	case "/start", "/help":
		b.reply(ctx, chatID, helpText)
	case "/addurl":
		b.addURL(ctx, chatID, arg)
	case "/listurl":
		b.listURLs(ctx, chatID)
	case "/delurl":
		b.deleteURL(ctx, chatID, arg)
	case "/dbstats":
		b.stats(ctx, chatID)
	case "/cleanup":
		b.cleanup(ctx, chatID)
	default:
		b.reply(ctx, chatID, "Unknown command. Try /help.")
	}
}

const helpText = "Commands:\n" +
	"/addurl <url> - watch a new OLX.ro search\n" +
	"/listurl - show watched searches\n" +
	"/delurl <n> - stop watching search n\n" +
	"/dbstats - store statistics\n" +
	"/cleanup - purge expired listings"

func (b *AdminBot) addURL(ctx context.Context, chatID, arg string) {
	arg = strings.TrimSpace(arg)
	if !strings.HasPrefix(arg, "http://") && !strings.HasPrefix(arg, "https://") {
		b.reply(ctx, chatID, "The link must start with http:// or https://.")
		return
	}
	if !strings.Contains(arg, "olx.ro") {
		b.reply(ctx, chatID, "Only OLX.ro search links are supported.")
		return
	}

	urls, err := b.watchlist.Load()
	if err != nil {
		b.logger.Error("load watchlist", "error", err)
		b.reply(ctx, chatID, "Could not load the watchlist.")
		return
	}
	for _, existing := range urls {
		if existing == arg {
			b.reply(ctx, chatID, "That URL is already watched.")
			return
		}
	}

	urls = append(urls, arg)
	if err := b.watchlist.Save(urls); err != nil {
		b.logger.Error("save watchlist", "error", err)
		b.reply(ctx, chatID, "Could not save the watchlist.")
		return
	}
	b.reply(ctx, chatID, "Search added. Scanning starts next cycle.")
}

func (b *AdminBot) listURLs(ctx context.Context, chatID string) {
	urls, err := b.watchlist.Load()
	if err != nil {
		b.logger.Error("load watchlist", "error", err)
		b.reply(ctx, chatID, "Could not load the watchlist.")
		return
	}
	if len(urls) == 0 {
		b.reply(ctx, chatID, "No searches watched yet. Use /addurl.")
		return
	}

	var sb strings.Builder
	sb.WriteString("Watched searches:\n")
	for i, u := range urls {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, u)
	}
	b.reply(ctx, chatID, sb.String())
}

func (b *AdminBot) deleteURL(ctx context.Context, chatID, arg string) {
	index, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil {
		b.reply(ctx, chatID, "Usage: /delurl <number from /listurl>")
		return
	}

	urls, loadErr := b.watchlist.Load()
	if loadErr != nil {
		b.logger.Error("load watchlist", "error", loadErr)
		b.reply(ctx, chatID, "Could not load the watchlist.")
		return
	}
	if index < 1 || index > len(urls) {
		b.reply(ctx, chatID, "No such entry.")
		return
	}

	removed := urls[index-1]
	urls = append(urls[:index-1], urls[index:]...)
	if err := b.watchlist.Save(urls); err != nil {
		b.logger.Error("save watchlist", "error", err)
		b.reply(ctx, chatID, "Could not save the watchlist.")
		return
	}
	b.reply(ctx, chatID, "Removed: "+removed)
}

func (b *AdminBot) stats(ctx context.Context, chatID string) {
	stats, err := b.store.Stats(ctx)
	if err != nil {
		b.logger.Error("store stats", "error", err)
		b.reply(ctx, chatID, "Could not read store statistics.")
		return
	}
	msg := fmt.Sprintf("Store statistics:\nTotal listings: %d\nLast 24h: %d\nUndelivered: %d\nLast cleanup: %s",
		stats.TotalListings, stats.Last24h, stats.Undelivered, stats.LastCleanup)
	b.reply(ctx, chatID, msg)
}

func (b *AdminBot) cleanup(ctx context.Context, chatID string) {
	deleted, err := b.store.PurgeExpired(ctx, time.Now())
	if err != nil {
		b.logger.Error("manual cleanup", "error", err)
		b.reply(ctx, chatID, "Cleanup failed.")
		return
	}
	if deleted == 0 {
		b.reply(ctx, chatID, "Nothing to clean up yet.")
		return
	}
	b.reply(ctx, chatID, fmt.Sprintf("Cleanup done, removed %d listings.", deleted))
}

func (b *AdminBot) reply(ctx context.Context, chatID, text string) {
	if err := b.sender.SendMessage(ctx, chatID, text); err != nil {
		b.logger.Warn("admin reply failed", "error", err)
	}
}

func splitCommand(text string) (cmd, arg string) {
	text = strings.TrimSpace(text)
	parts := strings.SplitN(text, " ", 2)
	cmd = strings.ToLower(parts[0])
	// Commands may arrive as /cmd@botname in group chats.
	if i := strings.Index(cmd, "@"); i > 0 {
		cmd = cmd[:i]
	}
	if len(parts) == 2 {
		arg = parts[1]
	}
	return cmd, arg
}
