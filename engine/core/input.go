package core

// Key code definitions
type KeyCode uint16

const (
	KEY_BACKSPACE KeyCode = 0x08
	KEY_TAB       KeyCode = 0x09
	KEY_ENTER     KeyCode = 0x0D
	KEY_SHIFT     KeyCode = 0x10
	KEY_PAUSE     KeyCode = 0x13
	KEY_ESCAPE    KeyCode = 0x1B
	KEY_SPACE     KeyCode = 0x20
	KEY_LEFT      KeyCode = 0x25
	KEY_UP        KeyCode = 0x26
	KEY_RIGHT     KeyCode = 0x27
	KEY_DOWN      KeyCode = 0x28
	KEY_A         KeyCode = 0x41
	KEY_D         KeyCode = 0x44
	KEY_P         KeyCode = 0x50
	KEY_S         KeyCode = 0x53
	KEY_V         KeyCode = 0x56
	KEY_W         KeyCode = 0x57
	KEY_F1        KeyCode = 0x70
	KEY_F12       KeyCode = 0x7B
	KEYS_MAX_KEYS KeyCode = 0x100
)

// Keyboard state structure
type KeyboardState struct {
	Keys [KEYS_MAX_KEYS]bool
}

// KeyHandler is notified whenever a key changes state.
type KeyHandler func(key KeyCode, pressed bool)

// Input holds current and previous keyboard state for one window.
type Input struct {
	current  KeyboardState
	previous KeyboardState
	handlers []KeyHandler
}

func NewInput() *Input {
	return &Input{}
}

// OnKey registers a handler called on every key state change.
func (in *Input) OnKey(h KeyHandler) {
	in.handlers = append(in.handlers, h)
}

// Update copies current states to previous states. Call once per frame, after input was recorded.
func (in *Input) Update() {
	in.previous = in.current
}

func (in *Input) IsKeyDown(key KeyCode) bool {
	if key >= KEYS_MAX_KEYS {
		return false
	}
	return in.current.Keys[key]
}

func (in *Input) IsKeyUp(key KeyCode) bool {
	return !in.IsKeyDown(key)
}

func (in *Input) WasKeyDown(key KeyCode) bool {
	if key >= KEYS_MAX_KEYS {
		return false
	}
	return in.previous.Keys[key]
}

func (in *Input) WasKeyUp(key KeyCode) bool {
	return !in.WasKeyDown(key)
}

// ProcessKey records a key transition. Handlers only fire when the state actually changed.
func (in *Input) ProcessKey(key KeyCode, pressed bool) {
	if key >= KEYS_MAX_KEYS {
		LogDebug("ignoring out of range key code %d", key)
		return
	}
	if in.current.Keys[key] == pressed {
		return
	}
	in.current.Keys[key] = pressed
	for _, h := range in.handlers {
		h(key, pressed)
	}
}
