package widget

import "strings"

// KeyEnter is the activation key name.
const KeyEnter = "enter"

// KeyEvent is a key press on the input field. Modifier is set when the
// secondary modifier (Shift or Alt, depending on the terminal) is held.
type KeyEvent struct {
	Key      string
	Modifier bool
}

// ShouldSubmit reports whether ev triggers a submission. Enter with the
// modifier held is reserved for a line break and never submits.
func ShouldSubmit(ev KeyEvent) bool {
	return ev.Key == KeyEnter && !ev.Modifier
}

// PrepareInput trims raw input and reports whether anything is left to submit.
func PrepareInput(raw string) (string, bool) {
	text := strings.TrimSpace(raw)
	return text, text != ""
}
