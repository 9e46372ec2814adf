package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/ytfetch/internal/models"
	"github.com/desertthunder/ytfetch/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgSubscribed MsgKind = iota
	MsgUpdate
	MsgWatchEnded
)

type subscription struct {
	sub         *tasks.ChannelSubscriber
	unsubscribe func()
	err         error
}

// subscribedMsg is the constructor for [MsgSubscribed]
func subscribedMsg(sub *tasks.ChannelSubscriber, unsubscribe func(), err error) Msg {
	return Msg{kind: MsgSubscribed, data: subscription{sub: sub, unsubscribe: unsubscribe, err: err}}
}

// updateMsg is the constructor for [MsgUpdate]
func updateMsg(m models.Message) Msg {
	return Msg{kind: MsgUpdate, data: m}
}

// watchEndedMsg is the constructor for [MsgWatchEnded]
func watchEndedMsg() Msg {
	return Msg{kind: MsgWatchEnded}
}
