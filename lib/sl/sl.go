package sl

import (
	"fmt"
	"log/slog"
)

func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.Attr{
		Key:   "error",
		Value: slog.StringValue(err.Error()),
	}
}

// Secret keeps only the first 5 characters of a credential
func Secret(some string) slog.Attr {
	r := "***"
	if len(some) > 5 {
		r = fmt.Sprintf("%s***", some[0:5])
	}
	if some == "" {
		r = "?"
	}
	return slog.Attr{
		Key:   "secret",
		Value: slog.StringValue(r),
	}
}

func Module(mod string) slog.Attr {
	return slog.Attr{
		Key:   "mod",
		Value: slog.StringValue(mod),
	}
}

func User(userId int64) slog.Attr {
	return slog.Int64("user", userId)
}

// Short truncates free text before it goes to the log.
func Short(key, text string) slog.Attr {
	r := []rune(text)
	if len(r) > 50 {
		text = string(r[:50]) + "..."
	}
	return slog.String(key, text)
}
