package bot

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"Genie/core"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func commandEntity(length int) *[]tgbotapi.MessageEntity {
	return &[]tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: length}}
}

func privateMessage(text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		From: &tgbotapi.User{ID: 42, FirstName: "Ada", LastName: "L"},
		Chat: &tgbotapi.Chat{ID: 4200, Type: "private"},
		Text: text,
	}
}

func TestToEvent_StartCarriesReferral(t *testing.T) {
	bot := &TgBot{botUsername: "genie_bot"}
	msg := privateMessage("/start ref_7")
	msg.Entities = commandEntity(len("/start"))

	ev, ok := bot.toEvent(msg)
	require.True(t, ok)
	assert.Equal(t, int64(42), ev.UserId)
	assert.Equal(t, int64(4200), ev.ChatId)
	assert.Equal(t, "start", ev.Command)
	assert.Equal(t, "ref_7", ev.Text)
	assert.Equal(t, "ref_7", ev.ReferralArg)
	assert.Equal(t, "Ada L", ev.Name)
}

func TestToEvent_OtherCommandsHaveNoReferral(t *testing.T) {
	bot := &TgBot{botUsername: "genie_bot"}
	msg := privateMessage("/photo a red fox")
	msg.Entities = commandEntity(len("/photo"))

	ev, ok := bot.toEvent(msg)
	require.True(t, ok)
	assert.Equal(t, "photo", ev.Command)
	assert.Equal(t, "a red fox", ev.Text)
	assert.Empty(t, ev.ReferralArg)
}

func TestToEvent_GroupFiltering(t *testing.T) {
	bot := &TgBot{botUsername: "genie_bot"}
	group := &tgbotapi.Chat{ID: -100, Type: "supergroup"}

	chatter := &tgbotapi.Message{From: &tgbotapi.User{ID: 1}, Chat: group, Text: "hello all"}
	_, ok := bot.toEvent(chatter)
	assert.False(t, ok)

	mention := &tgbotapi.Message{From: &tgbotapi.User{ID: 1}, Chat: group, Text: "@genie_bot what is Go?"}
	ev, ok := bot.toEvent(mention)
	require.True(t, ok)
	assert.Equal(t, "what is Go?", ev.Text)
	assert.Equal(t, int64(-100), ev.ChatId)

	reply := &tgbotapi.Message{
		From:           &tgbotapi.User{ID: 1},
		Chat:           group,
		Text:           "and then?",
		ReplyToMessage: &tgbotapi.Message{From: &tgbotapi.User{UserName: "genie_bot"}},
	}
	_, ok = bot.toEvent(reply)
	assert.True(t, ok)
}

func TestToEvent_NoSender(t *testing.T) {
	bot := &TgBot{}
	_, ok := bot.toEvent(&tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 1, Type: "channel"}, Text: "post"})
	assert.False(t, ok)
}

func TestSplitText(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitText("short", 10))

	text := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
	parts := splitText(text, 10)
	require.Len(t, parts, 2)
	assert.Equal(t, strings.Repeat("a", 6)+"\n", parts[0])
	assert.Equal(t, strings.Repeat("b", 6), parts[1])

	long := strings.Repeat("я", 25)
	parts = splitText(long, 10)
	require.Len(t, parts, 3)
	assert.Equal(t, long, strings.Join(parts, ""))
}

func TestReplyMarkup(t *testing.T) {
	assert.Nil(t, replyMarkup(core.KeyboardNone))

	terms, ok := replyMarkup(core.KeyboardTerms).(tgbotapi.ReplyKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, terms.Keyboard, 1)
	assert.Equal(t, buttonAccept, terms.Keyboard[0][0].Text)

	main, ok := replyMarkup(core.KeyboardMain).(tgbotapi.ReplyKeyboardMarkup)
	require.True(t, ok)
	assert.Len(t, main.Keyboard, 3)
}

// redirect sends every request of the bot client to a local server.
type redirect struct {
	target *url.URL
}

func (r redirect) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = r.target.Scheme
	req.URL.Host = r.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

func TestSetCommands_PublishesMenu(t *testing.T) {
	var published []menuCommand
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			_, _ = io.WriteString(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Genie","username":"genie_bot"}}`)
		case strings.HasSuffix(r.URL.Path, "/setMyCommands"):
			require.NoError(t, r.ParseForm())
			require.NoError(t, json.Unmarshal([]byte(r.PostForm.Get("commands")), &published))
			_, _ = io.WriteString(w, `{"ok":true,"result":true}`)
		default:
			_, _ = io.WriteString(w, `{"ok":false,"description":"Not Found"}`)
		}
	}))
	defer srv.Close()
	target, err := url.Parse(srv.URL)
	require.NoError(t, err)

	api, err := tgbotapi.NewBotAPIWithClient("123:abc", &http.Client{Transport: redirect{target: target}})
	require.NoError(t, err)
	bot := &TgBot{api: api, log: discardLogger()}

	require.NoError(t, bot.SetCommands())
	var names []string
	for _, c := range published {
		names = append(names, c.Command)
	}
	assert.Equal(t, []string{"start", "account", "photo", "ref", "nano", "pro", "help"}, names)
}

func TestMenu_CommandsAreRouted(t *testing.T) {
	for _, c := range menu {
		cmd, ok := commands[c.Command]
		assert.True(t, ok, c.Command)
		if c.Command != "help" {
			assert.NotEqual(t, cmdHelp, cmd, c.Command)
		}
		assert.Equal(t, strings.ToLower(c.Command), c.Command)
		assert.LessOrEqual(t, len(c.Command), 32)
		assert.GreaterOrEqual(t, len(c.Description), 3)
	}
}
