package account

import (
	"strconv"
	"strings"

	"Genie/core"
)

// Action is something a user did that may mark them active.
type Action int

const (
	ActionMessage Action = iota
	ActionImage
)

func (a Action) String() string {
	switch a {
	case ActionMessage:
		return "message"
	case ActionImage:
		return "image"
	}
	return "unknown"
}

// Qualifies reports whether action counts as the activating one under the
// configured threshold ("any" or "image").
func Qualifies(threshold string, action Action) bool {
	if threshold == core.ActivationImage {
		return action == ActionImage
	}
	return true
}

// ParseReferrer extracts a referrer id from a /start argument. Accepted forms
// are "42", "ref42" and "ref_42". Anything else yields ok=false.
func ParseReferrer(arg string) (int64, bool) {
	arg = strings.TrimSpace(arg)
	arg = strings.TrimPrefix(arg, "ref")
	arg = strings.TrimPrefix(arg, "_")
	if arg == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// ReferralLink is the deep link that starts the bot with a referral argument.
func ReferralLink(botUsername string, userId int64) string {
	if botUsername == "" {
		return "/start ref_" + strconv.FormatInt(userId, 10)
	}
	return "https://t.me/" + botUsername + "?start=ref_" + strconv.FormatInt(userId, 10)
}
