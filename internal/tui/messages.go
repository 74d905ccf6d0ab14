package tui

import "github.com/wpnas/wpnas/internal/notify"

type catalogLoadedMsg struct {
	err error
}

type actionDoneMsg struct {
	id  string
	err error
}

type noticeMsg struct {
	notice notify.Notice
}

type dismissNoticeMsg struct {
	id string
}

type clipboardMsg struct {
	text string
	err  error
}
