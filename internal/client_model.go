package internal

import (
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"roomchat/internal/archive"
)

// tui model struct for all the components and modes
type TUIModel struct {
	conn      *RoomConnection
	chat      *ChatState
	typingSig *TypingSignal
	uploader  *AttachmentUploader
	device    CaptureDevice
	store     *archive.Store // nil when the archive could not be opened

	textInput  textinput.Model
	params     RoomParams
	mode       appMode
	notice     string
	lastError  string
	ackTimeout time.Duration

	// attachment picker
	browsePath  string
	browseItems []FileItem
	browseIndex int

	// capture overlay
	session *MediaSession
}

// these are bubbletea messages that represent asynchronous events like
// joining, inbound room events, upload results, or recorder ticks.
type (
	joinedMsg     struct{ selfID string }
	joinFailedMsg struct{ err error }
	roomEventMsg  struct{ event Event }
	sendResultMsg struct{ err error }
	leftRoomMsg   struct{}

	archivedHistoryMsg struct{ messages []Message }
	savedNameMsg       struct{ name string }

	uploadDoneMsg struct {
		ref     *AttachmentRef
		preview string
		name    string
		err     error
	}

	browseLoadedMsg struct {
		path  string
		items []FileItem
		err   error
	}

	recorderTickMsg    struct{}
	recorderStartedMsg struct{ err error }
)

type appMode int

const (
	modeNamePrompt appMode = iota
	modeRoomPrompt
	modeConnecting
	modeChat
	modeBrowse
	modeRecorder
)

// this constructor builds a new chat ui model with a focused input ready
// for the display name prompt.
func NewTUIModel(conn *RoomConnection, uploader *AttachmentUploader, device CaptureDevice, store *archive.Store, username, room string) *TUIModel {
	input := textinput.New()
	input.CharLimit = 0
	input.Placeholder = "Enter display name…"
	input.Prompt = "name> "
	input.SetValue(username)
	input.Focus()

	model := &TUIModel{
		conn:       conn,
		chat:       NewChatState(""),
		uploader:   uploader,
		device:     device,
		store:      store,
		textInput:  input,
		params:     RoomParams{Room: room, Name: username},
		mode:       modeNamePrompt,
		ackTimeout: defaultAckTimeout,
	}
	model.typingSig = NewTypingSignal(DefaultTypingQuiet, conn.SendTyping)
	return model
}

// when the program starts we arm the single inbound event waiter and, when
// no name was given on the command line, look up the remembered one.
func (model *TUIModel) Init() tea.Cmd {
	cmds := []tea.Cmd{model.waitEventCmd()}
	if model.params.Name == "" && model.store != nil {
		cmds = append(cmds, model.loadNameCmd())
	}
	return tea.Batch(cmds...)
}
