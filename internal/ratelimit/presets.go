package ratelimit

import "time"

// Action names a throttled operation.
type Action string

const (
	ActionExamStart  Action = "exam-start"
	ActionExamSubmit Action = "exam-submit"
	ActionAutosave   Action = "autosave"
	ActionAntiCheat  Action = "anti-cheat-log"
)

// Presets are the per-subject limits for each action.
var Presets = map[Action]Config{
	ActionExamStart:  {Window: 15 * time.Minute, Max: 5},
	ActionExamSubmit: {Window: 5 * time.Minute, Max: 3},
	ActionAutosave:   {Window: time.Minute, Max: 10},
	ActionAntiCheat:  {Window: time.Minute, Max: 30},
}

// Key builds the limiter identifier "action:subject".
func Key(action Action, subject string) string {
	return string(action) + ":" + subject
}
