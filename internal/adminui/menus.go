package adminui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/relaydesk/relaydesk/internal/settings"
	"github.com/relaydesk/relaydesk/internal/telegram"
)

// Menu sections.
const (
	SectionMain       = "main"
	SectionFilters    = "filters"
	SectionVerify     = "verify"
	SectionAutoReply  = "autoreply"
	SectionBlockWords = "blockwords"
)

func btn(text, data string) telegram.InlineKeyboardButton {
	return telegram.InlineKeyboardButton{Text: text, CallbackData: data}
}

func row(buttons ...telegram.InlineKeyboardButton) []telegram.InlineKeyboardButton {
	return buttons
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

// renderSection builds the text and keyboard for one config submenu. Menus
// only read settings; every mutation goes back through a callback.
func (m *Manager) renderSection(ctx context.Context, section string) (string, *telegram.InlineKeyboardMarkup, error) {
	switch section {
	case SectionFilters:
		return m.renderFilters(ctx)
	case SectionVerify:
		return m.renderVerify(ctx)
	case SectionAutoReply:
		return m.renderAutoReplies(ctx)
	case SectionBlockWords:
		return m.renderBlockKeywords(ctx)
	default:
		return m.renderMain()
	}
}

func (m *Manager) renderMain() (string, *telegram.InlineKeyboardMarkup, error) {
	markup := &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{
		row(btn("Content filters", Encode(FamilyConfig, ActionMenu, SectionFilters))),
		row(btn("Verification", Encode(FamilyConfig, ActionMenu, SectionVerify))),
		row(btn("Auto-replies", Encode(FamilyConfig, ActionMenu, SectionAutoReply))),
		row(btn("Block keywords", Encode(FamilyConfig, ActionMenu, SectionBlockWords))),
	}}
	return "Bot settings", markup, nil
}

func (m *Manager) renderFilters(ctx context.Context) (string, *telegram.InlineKeyboardMarkup, error) {
	toggles := []struct {
		label string
		key   string
	}{
		{"Forwards", settings.KeyAllowForward},
		{"Channel forwards", settings.KeyAllowChannelForward},
		{"Audio & voice", settings.KeyAllowAudio},
		{"Stickers & GIFs", settings.KeyAllowSticker},
		{"Media files", settings.KeyAllowMedia},
		{"Plain text", settings.KeyAllowText},
		{"Links", settings.KeyAllowLink},
	}
	var rows [][]telegram.InlineKeyboardButton
	for _, t := range toggles {
		label := fmt.Sprintf("%s: %s", t.label, onOff(m.cfg.GetBool(ctx, t.key)))
		rows = append(rows, row(btn(label, Encode(FamilyConfig, ActionToggle, t.key))))
	}
	rows = append(rows, row(btn("« Back", Encode(FamilyConfig, ActionMenu, SectionMain))))
	return "Content filters — tap to toggle what users may send.", &telegram.InlineKeyboardMarkup{InlineKeyboard: rows}, nil
}

func (m *Manager) renderVerify(ctx context.Context) (string, *telegram.InlineKeyboardMarkup, error) {
	text := fmt.Sprintf("Verification\n\nQuestion: %s\nAnswer: %s\nBlock threshold: %d",
		m.cfg.Get(ctx, settings.KeyVerifyQuestion),
		m.cfg.Get(ctx, settings.KeyVerifyAnswer),
		m.cfg.GetInt(ctx, settings.KeyBlockThreshold),
	)
	markup := &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{
		row(btn("Edit question", Encode(FamilyConfig, ActionEdit, settings.KeyVerifyQuestion))),
		row(btn("Edit answer", Encode(FamilyConfig, ActionEdit, settings.KeyVerifyAnswer))),
		row(btn("Edit threshold", Encode(FamilyConfig, ActionEdit, settings.KeyBlockThreshold))),
		row(btn("« Back", Encode(FamilyConfig, ActionMenu, SectionMain))),
	}}
	return text, markup, nil
}

func (m *Manager) renderAutoReplies(ctx context.Context) (string, *telegram.InlineKeyboardMarkup, error) {
	rules, err := m.rules.AutoReplies(ctx)
	if err != nil {
		return "", nil, err
	}
	var b strings.Builder
	b.WriteString("Auto-replies (first match wins)\n")
	var rows [][]telegram.InlineKeyboardButton
	for i, rule := range rules {
		fmt.Fprintf(&b, "\n%d. /%s/ → %s", i+1, rule.Pattern, rule.Reply)
		rows = append(rows, row(btn(
			fmt.Sprintf("Delete %d", i+1),
			Encode(FamilyConfig, ActionDelRule, SectionAutoReply, rule.ID),
		)))
	}
	if len(rules) == 0 {
		b.WriteString("\n(none)")
	}
	rows = append(rows,
		row(btn("Add rule", Encode(FamilyConfig, ActionAddRule, SectionAutoReply))),
		row(btn("« Back", Encode(FamilyConfig, ActionMenu, SectionMain))),
	)
	return b.String(), &telegram.InlineKeyboardMarkup{InlineKeyboard: rows}, nil
}

func (m *Manager) renderBlockKeywords(ctx context.Context) (string, *telegram.InlineKeyboardMarkup, error) {
	patterns, err := m.rules.BlockKeywords(ctx)
	if err != nil {
		return "", nil, err
	}
	var b strings.Builder
	b.WriteString("Block keywords (case-insensitive patterns)\n")
	var rows [][]telegram.InlineKeyboardButton
	for i, p := range patterns {
		fmt.Fprintf(&b, "\n%d. /%s/", i+1, p)
		rows = append(rows, row(btn(
			fmt.Sprintf("Delete %d", i+1),
			Encode(FamilyConfig, ActionDelRule, SectionBlockWords, strconv.Itoa(i)),
		)))
	}
	if len(patterns) == 0 {
		b.WriteString("\n(none)")
	}
	rows = append(rows,
		row(btn("Add keyword", Encode(FamilyConfig, ActionAddRule, SectionBlockWords))),
		row(btn("« Back", Encode(FamilyConfig, ActionMenu, SectionMain))),
	)
	return b.String(), &telegram.InlineKeyboardMarkup{InlineKeyboard: rows}, nil
}

// sectionForKey picks which submenu to re-render after a scalar edit.
func sectionForKey(key string) string {
	switch key {
	case settings.KeyVerifyQuestion, settings.KeyVerifyAnswer, settings.KeyBlockThreshold:
		return SectionVerify
	case settings.KeyAutoReplyTag:
		return SectionAutoReply
	default:
		return SectionFilters
	}
}
