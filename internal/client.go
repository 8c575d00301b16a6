package internal

import (
	tea "github.com/charmbracelet/bubbletea"

	"roomchat/internal/archive"
)

// RunClient launches the bubbletea program with the chat model so the user
// can chat from the terminal.
func RunClient(conn *RoomConnection, uploader *AttachmentUploader, device CaptureDevice, store *archive.Store, username, room string) error {
	program := tea.NewProgram(NewTUIModel(conn, uploader, device, store, username, room))
	_, err := program.Run()
	return err
}
