package tgui

import (
	tele "gopkg.in/telebot.v4"
)

// Inline collects keyboard rows; Markup renders them.
type Inline struct {
	rows [][]tele.InlineButton
}

func NewInline() *Inline { return &Inline{} }

// Row appends one keyboard row. Empty rows are ignored.
func (i *Inline) Row(btns ...tele.Btn) *Inline {
	if len(btns) == 0 {
		return i
	}
	row := make([]tele.InlineButton, 0, len(btns))
	for _, b := range btns {
		row = append(row, *b.Inline())
	}
	i.rows = append(i.rows, row)
	return i
}

func (i *Inline) Len() int { return len(i.rows) }

func (i *Inline) Markup() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{InlineKeyboard: i.rows}
}

// Btn is a callback button; data is usually built with Data.
func Btn(text, data string) tele.Btn {
	return tele.Btn{Text: text, Data: data}
}
