package proto

import "strconv"

// commandParameters declares, per action, the parameter keys a command
// must carry before it is accepted for dispatch.
var commandParameters = map[string][]string{
	ActionLogin:     {"username", "password"},
	ActionJoinChat:  {"chatName", "password"},
	ActionSayChat:   {"chatName", "message"},
	ActionLeaveChat: {"chatName"},
	ActionJoinGame:  {"gameName"},
	ActionSetAI:     {"gameName", "ai", "team"},
	ActionDelAI:     {"gameName", "ai"},
	ActionSetTeam:   {"gameName", "player", "team"},
	ActionSetMap:    {"gameName", "mapId"},
	ActionStartGame: {"start"},
}

// KnownAction reports whether the action has a declared parameter set.
func KnownAction(action string) bool {
	_, ok := commandParameters[action]
	return ok
}

// FulfillsParameters reports whether every declared parameter for the
// action is present.
func FulfillsParameters(action string, params map[string]any) bool {
	declared, ok := commandParameters[action]
	if !ok {
		return false
	}
	for _, key := range declared {
		if _, present := params[key]; !present {
			return false
		}
	}
	return true
}

// StringParam extracts a string parameter, tolerating absent keys.
func StringParam(params map[string]any, key string) string {
	v, ok := params[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// IntParam extracts an integer parameter. JSON numbers arrive as float64;
// numeric strings are accepted too.
func IntParam(params map[string]any, key string) int {
	switch v := params[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// BoolParam extracts a boolean parameter.
func BoolParam(params map[string]any, key string) bool {
	v, ok := params[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}
