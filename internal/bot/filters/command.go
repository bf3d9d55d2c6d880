package filters

import "strings"

// ParseCommand разбирает команду с префиксом "/", "!" или ".".
// Суффикс "@botname" отбрасывается, имя команды приводится к нижнему регистру.
func ParseCommand(text string) (cmd string, args []string, ok bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil, false
	}

	switch text[0] {
	case '/', '!', '.':
	default:
		return "", nil, false
	}

	parts := strings.Fields(text[1:])
	if len(parts) == 0 {
		return "", nil, false
	}

	cmd = parts[0]
	if i := strings.Index(cmd, "@"); i >= 0 {
		cmd = cmd[:i]
	}
	if cmd == "" {
		return "", nil, false
	}
	return strings.ToLower(cmd), parts[1:], true
}
