package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"Genie/account"
	"Genie/core"
	"Genie/lib/sl"
	"Genie/storage"
)

type command int

const (
	cmdText command = iota
	cmdStart
	cmdTerms
	cmdAccept
	cmdAbout
	cmdHelp
	cmdProfile
	cmdReferral
	cmdNano
	cmdPro
	cmdImage
	cmdClear
	cmdTopic
)

var commands = map[string]command{
	"start":   cmdStart,
	"terms":   cmdTerms,
	"accept":  cmdAccept,
	"help":    cmdHelp,
	"account": cmdProfile,
	"profile": cmdProfile,
	"ref":     cmdReferral,
	"invite":  cmdReferral,
	"nano":    cmdNano,
	"pro":     cmdPro,
	"photo":   cmdImage,
	"image":   cmdImage,
	"clear":   cmdClear,
	"topic":   cmdTopic,
}

var buttons = map[string]command{
	buttonAbout:   cmdAbout,
	buttonProfile: cmdProfile,
	buttonImage:   cmdImage,
	buttonInvite:  cmdReferral,
	buttonAccept:  cmdAccept,
}

func route(ev core.Event) command {
	if ev.Command != "" {
		if cmd, ok := commands[ev.Command]; ok {
			return cmd
		}
		return cmdHelp
	}
	if cmd, ok := buttons[strings.TrimSpace(ev.Text)]; ok {
		return cmd
	}
	return cmdText
}

// Dispatcher runs one inbound event through the terms gate, the quota check,
// the downstream call and the referral update.
type Dispatcher struct {
	conf     *core.Config
	log      *slog.Logger
	accounts *account.Service
	chat     core.ChatService
	out      core.Responder
}

func NewDispatcher(conf *core.Config, log *slog.Logger, accounts *account.Service, chat core.ChatService, out core.Responder) *Dispatcher {
	return &Dispatcher{
		conf:     conf,
		log:      log.With(sl.Module("dispatcher")),
		accounts: accounts,
		chat:     chat,
		out:      out,
	}
}

func (d *Dispatcher) Handle(ctx context.Context, ev core.Event) {
	rec, err := d.accounts.Touch(ctx, ev.UserId, ev.ReferralArg)
	if err != nil {
		d.fail(ev, "loading user", err)
		return
	}

	cmd := route(ev)
	switch cmd {
	case cmdStart:
		d.start(ev, rec)
		return
	case cmdTerms:
		d.reply(ev.ChatId, termsText, core.KeyboardTerms)
		return
	case cmdAccept:
		d.acceptTerms(ctx, ev)
		return
	}

	if !account.TermsAccepted(rec) {
		d.reply(ev.ChatId, termsPromptText, core.KeyboardTerms)
		return
	}

	switch cmd {
	case cmdAbout:
		d.reply(ev.ChatId, welcomeText, core.KeyboardMain)
	case cmdHelp:
		d.reply(ev.ChatId, helpText, core.KeyboardMain)
	case cmdProfile:
		d.profile(ctx, ev)
	case cmdReferral:
		d.referral(ctx, ev)
	case cmdNano:
		d.setMode(ctx, ev, storage.ModeNano, modeNanoText)
	case cmdPro:
		d.setMode(ctx, ev, storage.ModePro, modeProText)
	case cmdClear:
		d.chat.ClearContext(ev.UserId)
		d.reply(ev.ChatId, clearedText, core.KeyboardNone)
	case cmdTopic:
		d.topic(ev)
	case cmdImage:
		d.image(ctx, ev, rec, commandArgument(ev))
	default:
		if rec.AwaitingImage {
			d.image(ctx, ev, rec, ev.Text)
			return
		}
		d.answer(ctx, ev, rec)
	}
}

// commandArgument is the text after a command, empty for buttons.
func commandArgument(ev core.Event) string {
	if ev.Command == "" {
		return ""
	}
	return strings.TrimSpace(ev.Text)
}

func (d *Dispatcher) start(ev core.Event, rec *storage.UserRecord) {
	if account.TermsAccepted(rec) {
		d.reply(ev.ChatId, welcomeText, core.KeyboardMain)
		return
	}
	d.reply(ev.ChatId, welcomeText+"\n\n"+termsText, core.KeyboardTerms)
}

func (d *Dispatcher) acceptTerms(ctx context.Context, ev core.Event) {
	if err := d.accounts.AcceptTerms(ctx, ev.UserId); err != nil {
		d.fail(ev, "accepting terms", err)
		return
	}
	d.reply(ev.ChatId, termsAcceptedText+"\n\n"+welcomeText, core.KeyboardMain)
}

func (d *Dispatcher) profile(ctx context.Context, ev core.Event) {
	p, err := d.accounts.Profile(ctx, ev.UserId)
	if err != nil {
		d.fail(ev, "loading profile", err)
		return
	}
	text := fmt.Sprintf(profileText,
		ev.UserId,
		ev.Name,
		p.Record.Mode,
		p.Remaining,
		p.FreeLimit,
		p.Record.BonusCount,
		p.ResetsAt.Format("2006-01-02 15:04 MST"),
	)
	d.reply(ev.ChatId, text, core.KeyboardMain)
}

func (d *Dispatcher) referral(ctx context.Context, ev core.Event) {
	p, err := d.accounts.Profile(ctx, ev.UserId)
	if err != nil {
		d.fail(ev, "loading referrals", err)
		return
	}
	text := fmt.Sprintf(referralText,
		account.ReferralLink(d.conf.Username, ev.UserId),
		d.conf.Quota.RefBonus,
		p.Invited,
		p.ActiveInvited,
	)
	d.reply(ev.ChatId, text, core.KeyboardMain)
}

func (d *Dispatcher) setMode(ctx context.Context, ev core.Event, mode, text string) {
	if err := d.accounts.SetMode(ctx, ev.UserId, mode); err != nil {
		d.fail(ev, "setting mode", err)
		return
	}
	d.reply(ev.ChatId, text, core.KeyboardNone)
}

func (d *Dispatcher) topic(ev core.Event) {
	topic := commandArgument(ev)
	if topic == "" {
		d.reply(ev.ChatId, noTopicText, core.KeyboardNone)
		return
	}
	d.chat.SetTopic(ev.UserId, topic)
	d.reply(ev.ChatId, fmt.Sprintf(topicText, topic), core.KeyboardNone)
}

// quotaLeft reports whether the user may start a metered action, replying
// with the exhausted notice when not.
func (d *Dispatcher) quotaLeft(ctx context.Context, ev core.Event) bool {
	ok, resetsAt, err := d.accounts.CanConsume(ctx, ev.UserId)
	if err != nil {
		d.fail(ev, "checking quota", err)
		return false
	}
	if ok {
		return true
	}
	d.reply(ev.ChatId, fmt.Sprintf(quotaExhausted, resetsAt.Format("2006-01-02 15:04 MST")), core.KeyboardMain)
	return false
}

func (d *Dispatcher) image(ctx context.Context, ev core.Event, rec *storage.UserRecord, prompt string) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		if err := d.accounts.SetAwaitingImage(ctx, ev.UserId, true); err != nil {
			d.fail(ev, "awaiting image prompt", err)
			return
		}
		d.reply(ev.ChatId, imagePromptText, core.KeyboardNone)
		return
	}
	if rec.AwaitingImage {
		if err := d.accounts.SetAwaitingImage(ctx, ev.UserId, false); err != nil {
			d.fail(ev, "clearing image prompt state", err)
			return
		}
	}
	if !d.quotaLeft(ctx, ev) {
		return
	}

	d.reply(ev.ChatId, imageProgressText, core.KeyboardNone)

	callCtx, cancel := context.WithTimeout(ctx, d.conf.Timeout())
	stop := d.out.Busy(ev.ChatId, core.ActionUploadPhoto)
	image, err := d.chat.GenerateImage(callCtx, ev.UserId, prompt)
	stop()
	cancel()
	if err != nil {
		d.log.With(sl.User(ev.UserId)).Error("generating image", sl.Err(err))
		d.reply(ev.ChatId, imageFailedText, core.KeyboardMain)
		return
	}

	if err := d.out.Send(core.Reply{ChatId: ev.ChatId, Image: image, Keyboard: core.KeyboardMain}); err != nil {
		d.log.With(sl.User(ev.UserId)).Error("sending image", sl.Err(err))
		return
	}
	// the user already has the image, so a failed charge is not reported back
	if err := d.accounts.Consume(ctx, ev.UserId); err != nil {
		d.log.With(sl.User(ev.UserId)).Warn("image delivered but not charged", sl.Err(err))
	}
	d.activity(ctx, ev.UserId, account.ActionImage)
}

func (d *Dispatcher) answer(ctx context.Context, ev core.Event, rec *storage.UserRecord) {
	if strings.TrimSpace(ev.Text) == "" {
		return
	}
	metered := d.conf.Quota.MeterChat
	if metered && !d.quotaLeft(ctx, ev) {
		return
	}

	model := d.conf.Model
	if rec.Mode == storage.ModePro {
		model = d.conf.ProModel
	}

	callCtx, cancel := context.WithTimeout(ctx, d.conf.Timeout())
	stop := d.out.Busy(ev.ChatId, core.ActionTyping)
	response, err := d.chat.GetResponse(callCtx, ev.UserId, model, ev.Text)
	stop()
	cancel()
	if err != nil {
		d.log.With(sl.User(ev.UserId)).Error("getting response", sl.Err(err))
		d.reply(ev.ChatId, errorResponse, core.KeyboardNone)
		return
	}

	if err := d.out.Send(core.Reply{ChatId: ev.ChatId, Text: response}); err != nil {
		d.log.With(sl.User(ev.UserId)).Error("sending response", sl.Err(err))
		return
	}
	if metered {
		if err := d.accounts.Consume(ctx, ev.UserId); err != nil {
			d.log.With(sl.User(ev.UserId)).Error("charging message", sl.Err(err))
		}
	}
	d.activity(ctx, ev.UserId, account.ActionMessage)
}

func (d *Dispatcher) activity(ctx context.Context, userId int64, action account.Action) {
	if _, err := d.accounts.RecordActivity(ctx, userId, action); err != nil {
		d.log.With(sl.User(userId)).Error("recording activity", sl.Err(err))
	}
}

func (d *Dispatcher) reply(chatId int64, text string, keyboard core.Keyboard) {
	if err := d.out.Send(core.Reply{ChatId: chatId, Text: text, Keyboard: keyboard}); err != nil {
		d.log.With(slog.Int64("chat", chatId)).Error("sending message", sl.Err(err))
	}
}

// fail logs the cause and answers with a generic notice, never the error text.
func (d *Dispatcher) fail(ev core.Event, op string, err error) {
	d.log.With(sl.User(ev.UserId)).Error(op, sl.Err(err))
	if errors.Is(err, core.ErrStorage) {
		d.reply(ev.ChatId, unavailableText, core.KeyboardNone)
		return
	}
	d.reply(ev.ChatId, errorResponse, core.KeyboardNone)
}
