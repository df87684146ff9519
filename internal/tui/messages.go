package tui

import (
	"github.com/Veraticus/pantry/internal/confirmation"
	"github.com/Veraticus/pantry/internal/model"
)

type presentationMsg struct {
	presentation *confirmation.Presentation
}

type confirmedMsg struct {
	result *model.ConfirmationResult
}

type skippedMsg struct {
	quit bool
}

type doneMsg struct{}

type errMsg struct {
	err error
}
