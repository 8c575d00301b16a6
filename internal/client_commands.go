package internal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"roomchat/internal/archive"
)

const archiveWindow = 200

// joinCmd announces the room membership and reports how it went.
func (model *TUIModel) joinCmd(params RoomParams) tea.Cmd {
	conn := model.conn
	return func() tea.Msg {
		if err := conn.Join(context.Background(), params); err != nil {
			return joinFailedMsg{err: err}
		}
		return joinedMsg{selfID: conn.SelfID()}
	}
}

// waitEventCmd blocks on the inbound event stream. Exactly one waiter is
// armed at a time: Init arms the first, and every delivered event re-arms.
func (model *TUIModel) waitEventCmd() tea.Cmd {
	events := model.conn.Events()
	return func() tea.Msg {
		return roomEventMsg{event: <-events}
	}
}

func (model *TUIModel) leaveCmd() tea.Cmd {
	conn := model.conn
	sig := model.typingSig
	return func() tea.Msg {
		sig.Stop()
		_ = conn.Leave()
		return leftRoomMsg{}
	}
}

// submitCmd sends the draft and reports the acknowledgment outcome. The
// draft is cleared inside Submit only when the server ack was positive.
func (model *TUIModel) submitCmd() tea.Cmd {
	chat := model.chat
	conn := model.conn
	timeout := model.ackTimeout
	return func() tea.Msg {
		return sendResultMsg{err: chat.Submit(context.Background(), conn, timeout)}
	}
}

// archivedHistoryCmd loads the archived tail of the room, shown until the
// server's history snapshot replaces it.
func (model *TUIModel) archivedHistoryCmd(room string) tea.Cmd {
	store := model.store
	return func() tea.Msg {
		if store == nil {
			return nil
		}
		rows, err := store.RecentMessages(context.Background(), room, archiveWindow)
		if err != nil || len(rows) == 0 {
			return nil
		}
		msgs := make([]Message, 0, len(rows))
		for _, row := range rows {
			msgs = append(msgs, messageFromArchive(row))
		}
		return archivedHistoryMsg{messages: msgs}
	}
}

// archiveAppendCmd stores one live message. Best effort: archive trouble
// never disturbs the chat.
func (model *TUIModel) archiveAppendCmd(msg Message) tea.Cmd {
	store := model.store
	room := model.params.Room
	return func() tea.Msg {
		if store == nil {
			return nil
		}
		_ = store.AppendMessage(context.Background(), archiveFromMessage(room, msg))
		return nil
	}
}

// archiveReplaceCmd mirrors a history snapshot into the archive.
func (model *TUIModel) archiveReplaceCmd(msgs []Message) tea.Cmd {
	store := model.store
	room := model.params.Room
	return func() tea.Msg {
		if store == nil {
			return nil
		}
		rows := make([]archive.ArchivedMessage, 0, len(msgs))
		for _, msg := range msgs {
			rows = append(rows, archiveFromMessage(room, msg))
		}
		_ = store.ReplaceHistory(context.Background(), room, rows)
		return nil
	}
}

func (model *TUIModel) saveNameCmd(name string) tea.Cmd {
	store := model.store
	return func() tea.Msg {
		if store == nil {
			return nil
		}
		_ = store.SaveDisplayName(context.Background(), name)
		return nil
	}
}

func (model *TUIModel) loadNameCmd() tea.Cmd {
	store := model.store
	return func() tea.Msg {
		name, err := store.LoadDisplayName(context.Background())
		if err != nil || name == "" {
			return nil
		}
		return savedNameMsg{name: name}
	}
}

func (model *TUIModel) browseCmd(path string) tea.Cmd {
	return func() tea.Msg {
		items, err := browseDirectory(path)
		return browseLoadedMsg{path: path, items: items, err: err}
	}
}

// uploadFileCmd runs the upload exchange for a picked file and stages the
// resulting reference for the draft.
func (model *TUIModel) uploadFileCmd(path string) tea.Cmd {
	uploader := model.uploader
	return func() tea.Msg {
		content, err := os.ReadFile(path)
		if err != nil {
			return uploadDoneMsg{err: err}
		}
		name := filepath.Base(path)
		ref, err := uploader.Upload(context.Background(), name, content)
		if err != nil {
			return uploadDoneMsg{err: err}
		}
		preview := ""
		if ref.Type == AttachmentImage {
			preview = ImagePreview(name, content)
		}
		return uploadDoneMsg{ref: ref, preview: preview, name: name}
	}
}

// uploadClipCmd ships a committed recording through the same attachment
// pipeline as a picked file.
func (model *TUIModel) uploadClipCmd(clip *Clip, kind CaptureKind) tea.Cmd {
	uploader := model.uploader
	return func() tea.Msg {
		name := fmt.Sprintf("recording-%d%s", time.Now().Unix(), kind.Extension())
		ref, err := uploader.Upload(context.Background(), name, clip.Data)
		if err != nil {
			return uploadDoneMsg{err: err}
		}
		return uploadDoneMsg{ref: ref, name: name}
	}
}

// recorderStartCmd acquires the device off the update loop since opening a
// capture process can take a moment.
func recorderStartCmd(session *MediaSession) tea.Cmd {
	return func() tea.Msg {
		return recorderStartedMsg{err: session.Start(context.Background())}
	}
}

func recorderTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg {
		return recorderTickMsg{}
	})
}

func messageFromArchive(row archive.ArchivedMessage) Message {
	msg := Message{
		User:      User{ID: row.UserID, Name: row.UserName},
		Body:      row.Body,
		Type:      row.Kind,
		Timestamp: row.Timestamp,
	}
	if row.FileURL != "" {
		msg.File = &AttachmentRef{URL: row.FileURL, Type: AttachmentType(row.FileType)}
	}
	return msg
}

func archiveFromMessage(room string, msg Message) archive.ArchivedMessage {
	row := archive.ArchivedMessage{
		Room:      room,
		UserID:    msg.User.ID,
		UserName:  msg.User.Name,
		Body:      msg.Body,
		Kind:      msg.Type,
		Timestamp: msg.Timestamp,
	}
	if msg.File != nil {
		row.FileURL = msg.File.URL
		row.FileType = string(msg.File.Type)
	}
	return row
}
