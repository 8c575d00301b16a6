package internal

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// pre styled colors, all from lipgloss
var (
	appTitleStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).Padding(0, 1)
	subtitleStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("110")).MarginTop(1)
	hintStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).MarginTop(1)
	chatHeaderStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).BorderForeground(lipgloss.Color("63")).Padding(0, 1)
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("109")).MarginTop(1)
	connectedStyle     = statusStyle.Copy().Foreground(lipgloss.Color("42")).Bold(true)
	connectingStyle    = statusStyle.Copy().Foreground(lipgloss.Color("178")).Italic(true)
	errorStyle         = statusStyle.Copy().Foreground(lipgloss.Color("196")).Bold(true)
	noticeStyle        = statusStyle.Copy().Foreground(lipgloss.Color("214"))
	messageBodyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("253"))
	messageBoxStyle    = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("60")).Padding(1, 2).MarginTop(1)
	inputBoxStyle      = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1).MarginTop(1)
	timestampStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	usernameStyle      = lipgloss.NewStyle().Bold(true)
	selfNameStyle      = usernameStyle.Copy().Foreground(lipgloss.Color("213"))
	systemMessageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Italic(true)
	attachmentStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("81")).Underline(true)
	typingLineStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("140")).Italic(true)
	dividerStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("237")).Render(" ┃ ")
	browseDirStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("81")).Bold(true)
	browseFileStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	browsePickedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Bold(true)
	recorderBoxStyle   = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("196")).Padding(1, 3).MarginTop(1)
	recorderLiveStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	userColorPalette   = []lipgloss.Color{
		lipgloss.Color("45"),
		lipgloss.Color("81"),
		lipgloss.Color("141"),
		lipgloss.Color("98"),
		lipgloss.Color("63"),
		lipgloss.Color("135"),
		lipgloss.Color("32"),
	}
)

func (model TUIModel) View() string {
	switch model.mode {
	case modeNamePrompt:
		return model.renderPrompt("RoomChat", "Pick the name other members will see.")
	case modeRoomPrompt:
		return model.renderPrompt("Join a room", "Enter a room name and press Enter.")
	case modeConnecting:
		return model.renderConnectingView()
	case modeBrowse:
		return model.renderBrowseView()
	case modeRecorder:
		return model.renderRecorderView()
	default:
		return model.renderChatView()
	}
}

func (model TUIModel) renderPrompt(title, hint string) string {
	viewSections := []string{
		appTitleStyle.Render(title),
		hintStyle.Render(hint),
	}
	if notices := model.renderNotices(); notices != "" {
		viewSections = append(viewSections, notices)
	}
	viewSections = append(viewSections, inputBoxStyle.Render(model.textInput.View()))
	return lipgloss.JoinVertical(lipgloss.Left, viewSections...)
}

func (model TUIModel) renderConnectingView() string {
	viewSections := []string{
		appTitleStyle.Render("RoomChat"),
		connectingStyle.Render(fmt.Sprintf("Joining %s as %s…", model.params.Room, model.params.Name)),
		hintStyle.Render("Esc to cancel"),
	}
	if notices := model.renderNotices(); notices != "" {
		viewSections = append(viewSections, notices)
	}
	return lipgloss.JoinVertical(lipgloss.Left, viewSections...)
}

func (model TUIModel) renderChatView() string {
	headerSegments := []string{"RoomChat"}
	headerSegments = append(headerSegments, fmt.Sprintf("Room %s", model.params.Room))
	headerSegments = append(headerSegments, fmt.Sprintf("User %s", model.params.Name))
	headerSegments = append(headerSegments, fmt.Sprintf("Members %d", len(model.chat.Users())))
	header := chatHeaderStyle.Render(strings.Join(headerSegments, dividerStyle))

	var statusLine string
	switch model.conn.State() {
	case StateJoined:
		statusLine = connectedStyle.Render("Connected")
	case StateConnecting:
		statusLine = connectingStyle.Render("Connecting…")
	default:
		statusLine = connectingStyle.Render("Offline, next send reconnects")
	}

	var messageLines []string
	for _, msg := range model.chat.Messages() {
		messageLines = append(messageLines, model.renderMessage(msg))
	}
	if len(messageLines) == 0 {
		messageLines = append(messageLines, systemMessageStyle.Render("No messages yet. Say hi and start the conversation."))
	}
	messagesView := messageBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, messageLines...))

	sections := []string{header, statusLine, messagesView}

	if typingLine := renderTypingLine(model.chat.TypingUsers()); typingLine != "" {
		sections = append(sections, typingLineStyle.Render(typingLine))
	}
	if notices := model.renderNotices(); notices != "" {
		sections = append(sections, notices)
	}
	if draft := model.chat.Draft(); draft.File != nil {
		sections = append(sections, noticeStyle.Render(fmt.Sprintf("Attachment staged (%s)", draft.File.Type)))
	}

	sections = append(sections, inputBoxStyle.Render(model.textInput.View()))
	sections = append(sections, model.renderStatsFooter())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (model TUIModel) renderStatsFooter() string {
	stats := model.conn.Stats()
	counters := fmt.Sprintf("recv %d • sent %d • failed %d • reconnects %d", stats.Received(), stats.Delivered(), stats.Failed(), stats.Reconnects())
	return hintStyle.Render(counters + "  |  /attach /audio /video /leave /quit")
}

func (model TUIModel) renderBrowseView() string {
	header := appTitleStyle.Render("Attach a file")
	subtitle := subtitleStyle.Render(model.browsePath)

	var lines []string
	if len(model.browseItems) == 0 {
		lines = append(lines, hintStyle.Render("Nothing here."))
	}
	for idx, item := range model.browseItems {
		label := item.Name
		if item.IsDir {
			label += "/"
		} else {
			label += "  " + formatFileSize(item.Size)
		}
		switch {
		case idx == model.browseIndex:
			lines = append(lines, browsePickedStyle.Render("➤ "+label))
		case item.IsDir:
			lines = append(lines, browseDirStyle.Render("  "+label))
		default:
			lines = append(lines, browseFileStyle.Render("  "+label))
		}
	}

	sections := []string{
		header,
		subtitle,
		messageBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)),
		hintStyle.Render("↑/↓ select • Enter open/attach • Esc back"),
	}
	if notices := model.renderNotices(); notices != "" {
		sections = append(sections, notices)
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (model TUIModel) renderRecorderView() string {
	session := model.session
	if session == nil {
		return model.renderChatView()
	}

	title := "Audio recorder"
	if session.Kind() == CaptureVideo {
		title = "Video recorder"
	}

	var statusLine, hint string
	switch session.State() {
	case CaptureAcquiring:
		statusLine = connectingStyle.Render("Opening capture device…")
		hint = "Esc cancel"
	case CaptureRecording:
		statusLine = recorderLiveStyle.Render("● REC " + formatClock(session.Elapsed()))
		hint = "Enter stop • Esc discard"
	case CaptureStopped:
		statusLine = connectedStyle.Render("Stopped at " + formatClock(session.Elapsed()))
		hint = "s send • r re-record • Esc discard"
	default:
		statusLine = statusStyle.Render("Ready")
		hint = "Esc back"
	}

	box := recorderBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		appTitleStyle.Render(title),
		statusLine,
		hintStyle.Render(hint),
	))

	sections := []string{box}
	if notices := model.renderNotices(); notices != "" {
		sections = append(sections, notices)
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (model TUIModel) renderNotices() string {
	var lines []string
	if model.lastError != "" {
		lines = append(lines, errorStyle.Render(model.lastError))
	}
	if model.notice != "" {
		lines = append(lines, noticeStyle.Render(model.notice))
	}
	if len(lines) == 0 {
		return ""
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// renderMessage renders a single log line. It stamps the timestamp, picks a
// color for the sender, and marks attachments and presence.
func (model TUIModel) renderMessage(msg Message) string {
	timestamp := timestampStyle.Render(fmt.Sprintf("[%s]", time.Unix(msg.Timestamp, 0).Format("15:04:05")))
	if msg.Type == MessageSystem {
		return lipgloss.JoinHorizontal(lipgloss.Left, timestamp, " ", systemMessageStyle.Render(msg.Body))
	}

	var nameStyle lipgloss.Style
	if msg.User.ID != "" && msg.User.ID == model.chat.SelfID() {
		nameStyle = selfNameStyle
	} else {
		nameStyle = usernameStyle.Copy().Foreground(colorForUser(msg.User.Name))
	}

	name := nameStyle.Render(presenceDot(model.chat.Online(msg.User.ID)) + " " + msg.User.Name)
	bodyText := messageBodyStyle.Render(strings.ReplaceAll(msg.Body, "\n", "\n   "))

	parts := []string{timestamp, " ", name, ": ", bodyText}
	if msg.File != nil {
		parts = append(parts, " ", attachmentStyle.Render(fmt.Sprintf("[%s] %s", msg.File.Type, msg.File.URL)))
	}
	return lipgloss.JoinHorizontal(lipgloss.Left, parts...)
}

func renderTypingLine(users []User) string {
	switch len(users) {
	case 0:
		return ""
	case 1:
		return users[0].Name + " is typing…"
	default:
		names := make([]string, 0, len(users))
		for _, u := range users {
			names = append(names, u.Name)
		}
		return strings.Join(names, ", ") + " are typing…"
	}
}

func presenceDot(online bool) string {
	if online {
		return lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Render("●")
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Render("○")
}

// color for users
func colorForUser(name string) lipgloss.Color {
	if len(userColorPalette) == 0 {
		return lipgloss.Color("249")
	}
	if name == "" {
		return userColorPalette[0]
	}
	var sum int
	for _, r := range name {
		sum += int(r)
	}
	return userColorPalette[sum%len(userColorPalette)]
}

func formatClock(d time.Duration) string {
	total := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
