package tui

import "github.com/Veraticus/smart-captures/internal/model"

type candidatesLoadedMsg struct {
	items []model.PendingCandidate
}

type acceptedMsg struct {
	err error
	id  string
	txn model.Transaction
}

type rejectedMsg struct {
	err error
	id  string
}
