package internal

import (
	"errors"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// Update routes every terminal key and asynchronous message through the
// current mode.
func (model *TUIModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch typedMessage := message.(type) {
	case tea.KeyMsg:
		// Ctrl+C bails out from any mode after releasing whatever is held.
		if typedMessage.Type == tea.KeyCtrlC {
			model.shutdown()
			return model, tea.Quit
		}
		switch model.mode {
		case modeNamePrompt:
			return model.updateNamePrompt(typedMessage)
		case modeRoomPrompt:
			return model.updateRoomPrompt(typedMessage)
		case modeConnecting:
			if typedMessage.Type == tea.KeyEsc {
				model.mode = modeRoomPrompt
				model.resetPrompt("room> ", "Enter room name…")
				return model, nil
			}
			return model, nil
		case modeChat:
			return model.updateChat(typedMessage)
		case modeBrowse:
			return model.updateBrowse(typedMessage)
		case modeRecorder:
			return model.updateRecorder(typedMessage)
		}

	case savedNameMsg:
		if model.mode == modeNamePrompt && strings.TrimSpace(model.textInput.Value()) == "" {
			model.textInput.SetValue(typedMessage.name)
		}
		return model, nil

	case joinedMsg:
		model.chat.SetSelfID(typedMessage.selfID)
		model.mode = modeChat
		model.notice = ""
		model.lastError = ""
		model.resetPrompt("> ", "Type a message…")
		return model, nil

	case joinFailedMsg:
		model.lastError = "Could not join: " + typedMessage.err.Error()
		model.mode = modeRoomPrompt
		model.resetPrompt("room> ", "Enter room name…")
		return model, nil

	case roomEventMsg:
		return model.updateRoomEvent(typedMessage.event)

	case sendResultMsg:
		if typedMessage.err != nil {
			if errors.Is(typedMessage.err, ErrEmptyMessage) {
				return model, nil
			}
			model.lastError = "Send failed: " + typedMessage.err.Error()
			return model, nil
		}
		model.lastError = ""
		model.textInput.SetValue("")
		model.typingSig.Stop()
		model.conn.SendTyping(false)
		return model, nil

	case archivedHistoryMsg:
		// Archived tail is only a placeholder until the live history lands.
		if len(model.chat.Messages()) == 0 {
			model.chat.Apply(HistoryEvent{Messages: typedMessage.messages})
		}
		return model, nil

	case uploadDoneMsg:
		model.mode = modeChat
		if typedMessage.err != nil {
			model.lastError = "Upload failed: " + typedMessage.err.Error()
			return model, nil
		}
		model.lastError = ""
		model.chat.AttachFile(typedMessage.ref, typedMessage.preview)
		model.notice = "Attached " + typedMessage.name + ". Press Enter to send, /detach to drop it."
		return model, nil

	case browseLoadedMsg:
		if typedMessage.err != nil {
			model.lastError = "Cannot open " + typedMessage.path + ": " + typedMessage.err.Error()
			model.mode = modeChat
			return model, nil
		}
		model.mode = modeBrowse
		model.browsePath = typedMessage.path
		model.browseItems = typedMessage.items
		model.browseIndex = 0
		return model, nil

	case recorderStartedMsg:
		if typedMessage.err != nil {
			model.lastError = "Recorder: " + typedMessage.err.Error()
			return model, nil
		}
		model.lastError = ""
		return model, recorderTickCmd()

	case recorderTickMsg:
		if model.session != nil && model.session.State() == CaptureRecording {
			return model, recorderTickCmd()
		}
		return model, nil

	case leftRoomMsg:
		model.mode = modeRoomPrompt
		model.notice = "Left the room."
		model.resetPrompt("room> ", "Enter room name…")
		return model, nil
	}
	return model, nil
}

func (model *TUIModel) updateNamePrompt(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Type == tea.KeyEnter {
		trimmed := strings.TrimSpace(model.textInput.Value())
		if trimmed == "" {
			model.lastError = "Display name cannot be empty."
			return model, nil
		}
		model.params.Name = trimmed
		model.lastError = ""
		saveCmd := model.saveNameCmd(trimmed)
		if model.params.Room != "" {
			// Room came from the command line, go straight to joining.
			model.mode = modeConnecting
			model.textInput.Blur()
			return model, tea.Batch(saveCmd, model.archivedHistoryCmd(model.params.Room), model.joinCmd(model.params))
		}
		model.mode = modeRoomPrompt
		model.resetPrompt("room> ", "Enter room name…")
		return model, saveCmd
	}
	var cmd tea.Cmd
	model.textInput, cmd = model.textInput.Update(key)
	return model, cmd
}

func (model *TUIModel) updateRoomPrompt(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.Type {
	case tea.KeyEsc:
		model.mode = modeNamePrompt
		model.resetPrompt("name> ", "Enter display name…")
		model.textInput.SetValue(model.params.Name)
		return model, nil
	case tea.KeyEnter:
		trimmed := strings.TrimSpace(model.textInput.Value())
		if trimmed == "" {
			return model, nil
		}
		model.params.Room = trimmed
		model.mode = modeConnecting
		model.textInput.Blur()
		model.textInput.SetValue("")
		return model, tea.Batch(model.archivedHistoryCmd(trimmed), model.joinCmd(model.params))
	}
	var cmd tea.Cmd
	model.textInput, cmd = model.textInput.Update(key)
	return model, cmd
}

func (model *TUIModel) updateChat(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Type == tea.KeyEnter {
		trimmed := strings.TrimSpace(model.textInput.Value())
		if strings.HasPrefix(trimmed, "/") {
			return model.runSlashCommand(strings.ToLower(trimmed))
		}
		model.chat.SetDraftText(trimmed)
		if model.chat.Draft().Empty() {
			return model, nil
		}
		return model, model.submitCmd()
	}

	before := model.textInput.Value()
	var cmd tea.Cmd
	model.textInput, cmd = model.textInput.Update(key)
	if value := model.textInput.Value(); value != before {
		model.chat.SetDraftText(value)
		if value != "" {
			model.typingSig.Keystroke()
		}
	}
	return model, cmd
}

func (model *TUIModel) runSlashCommand(command string) (tea.Model, tea.Cmd) {
	model.textInput.SetValue("")
	model.chat.SetDraftText("")
	switch command {
	case "/quit", "/exit":
		model.shutdown()
		return model, tea.Quit
	case "/leave":
		return model, model.leaveCmd()
	case "/attach":
		return model, model.browseCmd(defaultBrowsePath())
	case "/detach":
		model.chat.ClearAttachment()
		model.notice = ""
		return model, nil
	case "/audio":
		return model.openRecorder(CaptureAudio)
	case "/video":
		return model.openRecorder(CaptureVideo)
	default:
		model.lastError = "Unknown command " + command
		return model, nil
	}
}

func (model *TUIModel) openRecorder(kind CaptureKind) (tea.Model, tea.Cmd) {
	model.session = NewMediaSession(kind, model.device)
	model.mode = modeRecorder
	model.lastError = ""
	return model, recorderStartCmd(model.session)
}

func (model *TUIModel) updateBrowse(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "esc", "q":
		model.mode = modeChat
		return model, nil
	case "up", "k":
		if model.browseIndex > 0 {
			model.browseIndex--
		}
		return model, nil
	case "down", "j":
		if model.browseIndex < len(model.browseItems)-1 {
			model.browseIndex++
		}
		return model, nil
	case "enter":
		if model.browseIndex >= len(model.browseItems) {
			return model, nil
		}
		item := model.browseItems[model.browseIndex]
		if item.IsDir {
			return model, model.browseCmd(item.Path)
		}
		model.mode = modeChat
		model.notice = "Uploading " + item.Name + "…"
		return model, model.uploadFileCmd(item.Path)
	}
	return model, nil
}

func (model *TUIModel) updateRecorder(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	session := model.session
	if session == nil {
		model.mode = modeChat
		return model, nil
	}
	switch key.String() {
	case "esc", "q":
		session.Close()
		model.session = nil
		model.mode = modeChat
		return model, nil
	case "enter", " ":
		if session.State() == CaptureRecording {
			session.Stop()
		}
		return model, nil
	case "s":
		clip, err := session.Save()
		if err != nil {
			model.lastError = "Recorder: " + err.Error()
			return model, nil
		}
		kind := session.Kind()
		session.Close()
		model.session = nil
		model.mode = modeChat
		model.notice = "Uploading recording…"
		return model, model.uploadClipCmd(clip, kind)
	case "r":
		if session.State() == CaptureStopped {
			session.Retry()
			return model, recorderStartCmd(session)
		}
		return model, nil
	}
	return model, nil
}

// updateRoomEvent folds one inbound event into the view state, mirrors it
// into the archive, and re-arms the event waiter.
func (model *TUIModel) updateRoomEvent(event Event) (tea.Model, tea.Cmd) {
	cmds := []tea.Cmd{model.waitEventCmd()}
	model.chat.Apply(event)

	switch typed := event.(type) {
	case MessageEvent:
		cmds = append(cmds, model.archiveAppendCmd(typed.Message))
	case HistoryEvent:
		cmds = append(cmds, model.archiveReplaceCmd(typed.Messages))
	case ErrorEvent:
		model.lastError = "Server: " + typed.Message
		model.mode = modeRoomPrompt
		model.resetPrompt("room> ", "Enter room name…")
		cmds = append(cmds, model.leaveCmd())
	}
	return model, tea.Batch(cmds...)
}

func (model *TUIModel) resetPrompt(prompt, placeholder string) {
	model.textInput.SetValue("")
	model.textInput.Prompt = prompt
	model.textInput.Placeholder = placeholder
	model.textInput.Focus()
}

// shutdown releases the capture session and announces the departure before
// the program exits.
func (model *TUIModel) shutdown() {
	model.typingSig.Stop()
	if model.session != nil {
		model.session.Close()
		model.session = nil
	}
	_ = model.conn.Leave()
}
